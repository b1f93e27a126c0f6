package shard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nareon/subtitles-cleaner/internal/fsutil"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// PartName 返回第 i 个（自 1 起）分片文件名：<base>.part-NNN<ext>。
func PartName(src string, i int) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s.part-%03d%s", strings.TrimSuffix(base, ext), i, ext)
}

// CountLines 返回 r 中的行数（末行无 \n 也计一行）。
func CountLines(ctx context.Context, r io.Reader) (int64, error) {
	br := bufio.NewReaderSize(r, 256*1024)
	var n int64
	// partial: 超长行的前段已读出，尚未见到 \n
	partial := false
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		b, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			n++
			partial = false
		case errors.Is(err, bufio.ErrBufferFull):
			partial = true
		case errors.Is(err, io.EOF):
			if len(b) > 0 || partial {
				n++
			}
			return n, nil
		default:
			return n, err
		}
	}
}

// Split 把 src 按行切成 n 个连续分片写入 dstDir，返回分片路径（按序）。
// 约束：
//  1. 行边界对齐，字节原样复制（含 CRLF）；拼接全部分片等于原文件；
//  2. 各分片行数相差不超过 1，靠前的分片多分；行数少于 n 时只产生行数个分片；
//  3. 每个分片原子写出。
func Split(ctx context.Context, src, dstDir string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: parts must be >= 1", contract.ErrInvalidConfig)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	total, err := CountLines(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count lines: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}
	parts := int64(n)
	if total < parts {
		parts = total
	}
	if parts == 0 {
		parts = 1
	}
	br := bufio.NewReaderSize(f, 256*1024)
	out := make([]string, 0, parts)
	for i := int64(0); i < parts; i++ {
		want := total / parts
		if i < total%parts {
			want++
		}
		dst := filepath.Join(dstDir, PartName(src, int(i)+1))
		err := fsutil.WriteAtomic(ctx, dst, nil, func(w io.Writer) error {
			return copyLines(ctx, br, w, want)
		})
		if err != nil {
			return out, fmt.Errorf("write %s: %w", dst, err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func copyLines(ctx context.Context, br *bufio.Reader, w io.Writer, lines int64) error {
	partial := false
	for done := int64(0); done < lines; {
		if done%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b, err := br.ReadSlice('\n')
		if len(b) > 0 {
			if _, werr := w.Write(b); werr != nil {
				return werr
			}
		}
		switch {
		case err == nil:
			done++
			partial = false
		case errors.Is(err, bufio.ErrBufferFull):
			partial = true
		case errors.Is(err, io.EOF):
			if len(b) > 0 || partial {
				done++
			}
			if done < lines {
				return fmt.Errorf("%w: source shrank during split", contract.ErrArtifactMismatch)
			}
		default:
			return err
		}
	}
	return nil
}
