package fsutil

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Options: 原子写的最小选项。
type Options struct {
	// PermFile: 目标文件权限；为 0 时使用 0o644。
	PermFile os.FileMode
	// BufSize: 写缓冲区大小；<=0 使用 64KiB。
	BufSize int
}

func (o *Options) perm() os.FileMode {
	if o == nil || o.PermFile == 0 {
		return 0o644
	}
	return o.PermFile
}

func (o *Options) bufSize() int {
	if o == nil || o.BufSize <= 0 {
		return 64 * 1024
	}
	return o.BufSize
}

// WriteAtomic 以“同目录临时文件 + fsync + rename 覆盖 + 父目录 fsync”的方式写出 dest。
// 约束：
//  1. 崩溃时 dest 要么是旧内容，要么是完整新内容，绝不出现半写状态；
//  2. fill 返回错误或 ctx 取消时删除临时文件，dest 保持不变；
//  3. 父目录必须已存在（目录创建由调用方负责）。
func WriteAtomic(ctx context.Context, dest string, opts *Options, fill func(w io.Writer) error) error {
	if strings.TrimSpace(dest) == "" {
		return os.ErrInvalid
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	// 目标权限：尽量与期望一致
	_ = os.Chmod(tmpPath, opts.perm())

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	bw := bufio.NewWriterSize(tmp, opts.bufSize())
	if err := fill(bw); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 父目录 fsync：让 rename 本身持久化
	return SyncDir(dir)
}

// WriteFileAtomic 原子写出一段完整字节。
func WriteFileAtomic(ctx context.Context, dest string, data []byte, opts *Options) error {
	return WriteAtomic(ctx, dest, opts, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// WriteReaderAtomic 将 r 的全部字节原子写出到 dest；每次 Read 前检查 ctx。
func WriteReaderAtomic(ctx context.Context, dest string, r io.Reader, opts *Options) error {
	return WriteAtomic(ctx, dest, opts, func(w io.Writer) error {
		_, err := io.Copy(w, readerWithCtx(ctx, r))
		return err
	})
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
