//go:build windows

package fleet

import "os"

// Windows 不支持向子进程发送中断信号，直接终止。
func interrupt(p *os.Process) error { return p.Kill() }
