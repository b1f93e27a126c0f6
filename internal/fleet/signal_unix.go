//go:build !windows

package fleet

import "os"

func interrupt(p *os.Process) error { return p.Signal(os.Interrupt) }
