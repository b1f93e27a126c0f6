package shard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nareon/subtitles-cleaner/internal/fsutil"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// DefaultSampleEvery 为默认抽样间隔。
const DefaultSampleEvery = 100

// Sample 把 src 中行号（自 1 起）为 every 整数倍的行原样写入 dst，返回写出行数。
// dst 原子写出；末行无 \n 时补齐。
func Sample(ctx context.Context, src, dst string, every int) (int64, error) {
	if every < 1 {
		return 0, fmt.Errorf("%w: every must be >= 1", contract.ErrInvalidConfig)
	}
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var sampled int64
	err = fsutil.WriteAtomic(ctx, dst, nil, func(w io.Writer) error {
		br := bufio.NewReaderSize(f, 256*1024)
		for n := int64(1); ; n++ {
			if n%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			b, err := br.ReadBytes('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if len(b) == 0 {
				return nil
			}
			if n%int64(every) == 0 {
				if b[len(b)-1] != '\n' {
					b = append(b, '\n')
				}
				if _, err := w.Write(b); err != nil {
					return err
				}
				sampled++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return sampled, nil
}
