package shard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Shard: 一个待处理的分片文件。
type Shard struct {
	ID   contract.ShardID
	Path string
}

// Discover 遍历 roots，按稳定顺序返回匹配 pattern 的常规文件。
// 约束：
//  1. 目录内按名称字典序，先子目录后文件；
//  2. 跳过以 "." 开头的文件与目录（含输出目录中的临时文件）；
//  3. 目录符号链接不跟随，指向常规文件的符号链接保留；
//  4. 两个文件映射到同一分片标识时报 ErrPathInvalid（输出路径会冲突）。
//
// pattern 为空时匹配全部；按 filepath.Match 对基名匹配。
func Discover(ctx context.Context, roots []string, pattern string) ([]Shard, error) {
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", contract.ErrInvalidConfig, pattern, err)
		}
	}
	d := &discovery{pattern: pattern, ids: make(map[contract.ShardID]string)}
	for _, root := range roots {
		if err := d.visit(ctx, root, true); err != nil {
			return nil, err
		}
	}
	return d.out, nil
}

type discovery struct {
	pattern string
	ids     map[contract.ShardID]string
	out     []Shard
}

func (d *discovery) visit(ctx context.Context, p string, isRoot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(p)
		if err != nil {
			return err
		}
		// 非常规目标（含目录）：忽略
		if !t.Mode().IsRegular() {
			return nil
		}
		return d.add(p, isRoot)
	}
	if info.IsDir() {
		return d.walkDir(ctx, p)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return d.add(p, isRoot)
}

func (d *discovery) walkDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			if err := d.walkDir(ctx, filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	for _, e := range entries {
		if e.IsDir() || hidden(e.Name()) {
			continue
		}
		if err := d.visit(ctx, filepath.Join(dir, e.Name()), false); err != nil {
			return err
		}
	}
	return nil
}

// add 登记一个文件；显式给出的根文件不受 pattern 约束。
func (d *discovery) add(p string, isRoot bool) error {
	if !isRoot && d.pattern != "" {
		if ok, _ := filepath.Match(d.pattern, filepath.Base(p)); !ok {
			return nil
		}
	}
	id, err := contract.ShardIDFromPath(p)
	if err != nil {
		return err
	}
	if prev, dup := d.ids[id]; dup {
		return fmt.Errorf("%w: %s and %s share shard id %q", contract.ErrPathInvalid, prev, p, id)
	}
	d.ids[id] = p
	d.out = append(d.out, Shard{ID: id, Path: p})
	return nil
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }
