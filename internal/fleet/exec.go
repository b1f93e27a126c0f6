package fleet

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ExecLauncher 以子进程方式运行 `<binary> worker ...`，每个分片一个操作系统进程。
type ExecLauncher struct {
	// Binary 为空时取当前可执行文件。
	Binary string
	// ConfigPath 透传给子进程的 --config（可空）。
	ConfigPath string
	// CorrID 透传给子进程，便于跨进程关联日志。
	CorrID string
	// ExtraArgs 附加在 worker 参数之后（例如命令行覆盖项）。
	ExtraArgs []string
	// Env 追加到当前进程环境变量之后。
	Env []string
	// Stdout/Stderr 为子进程输出目标；nil 时丢弃 stdout、继承 stderr。
	Stdout io.Writer
	Stderr io.Writer
	// StopGrace: ctx 取消后先发中断信号，超过该时长仍未退出则强杀。默认 30s。
	StopGrace time.Duration

	// 并行子进程共享 Stdout/Stderr，非 *os.File 的写入经此串行化
	mu sync.Mutex
}

// Args 返回子进程参数（不含可执行文件本身）。
func (l *ExecLauncher) Args(job Job) []string {
	args := []string{
		"worker",
		"--shard", job.Shard.Path,
		"--shard-id", string(job.Shard.ID),
		"--text-out", job.TextPath,
		"--meta-out", job.MetaPath,
		"--checkpoint", job.CheckpointPath,
		"--progress=false",
	}
	if job.LogDir != "" {
		args = append(args, "--log-dir", job.LogDir)
	}
	if l.ConfigPath != "" {
		args = append(args, "--config", l.ConfigPath)
	}
	if l.CorrID != "" {
		args = append(args, "--corr-id", l.CorrID)
	}
	return append(args, l.ExtraArgs...)
}

// Launch 启动子进程并等待退出；非零退出码作为错误返回。
func (l *ExecLauncher) Launch(ctx context.Context, job Job) error {
	bin := l.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		bin = exe
	}
	cmd := exec.CommandContext(ctx, bin, l.Args(job)...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = l.guard(l.Stdout)
	cmd.Stderr = l.guard(l.Stderr)
	if l.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// 先请求 Worker 在下一行边界停下，超时再强杀；已保存的检查点不受影响
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = l.StopGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 30 * time.Second
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("worker process: %w", err)
	}
	return nil
}

// guard 包裹共享输出；*os.File 由子进程直接继承，无需加锁。
func (l *ExecLauncher) guard(w io.Writer) io.Writer {
	switch w.(type) {
	case nil:
		return nil
	case *os.File:
		return w
	}
	return &lockedWriter{mu: &l.mu, w: w}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
