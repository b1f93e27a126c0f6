package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nareon/subtitles-cleaner/internal/checkpoint"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/internal/shard"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

const comp = "fleet"

// Job: 一个分片的 Worker 运行参数（全部为文件路径，进程间无共享状态）。
type Job struct {
	Shard          shard.Shard
	TextPath       string
	MetaPath       string
	CheckpointPath string
	LogDir         string
}

// 每个分片输出文件名的后缀。
const (
	TextSuffix       = ".clean.txt"
	MetaSuffix       = ".meta.jsonl"
	CheckpointSuffix = ".ckpt.json"
)

// CheckpointFor 返回与元数据路径同组的检查点路径（<name>.meta.jsonl → <name>.ckpt.json）；不符合命名时 ok 为 false。
func CheckpointFor(metaPath string) (string, bool) {
	name, found := strings.CutSuffix(filepath.Base(metaPath), MetaSuffix)
	if !found || name == "" {
		return "", false
	}
	return filepath.Join(filepath.Dir(metaPath), name+CheckpointSuffix), true
}

// Plan 为每个分片推导输出路径：<out>/<id>.clean.txt、<out>/<id>.meta.jsonl、<out>/<id>.ckpt.json。
func Plan(shards []shard.Shard, outDir, logDir string) []Job {
	jobs := make([]Job, 0, len(shards))
	for _, s := range shards {
		id := string(s.ID)
		jobs = append(jobs, Job{
			Shard:          s,
			TextPath:       filepath.Join(outDir, id+TextSuffix),
			MetaPath:       filepath.Join(outDir, id+MetaSuffix),
			CheckpointPath: filepath.Join(outDir, id+CheckpointSuffix),
			LogDir:         logDir,
		})
	}
	return jobs
}

// Launcher 运行单个分片直到结束。实现必须在 ctx 取消后尽快返回。
type Launcher interface {
	Launch(ctx context.Context, job Job) error
}

// LauncherFunc 适配普通函数。
type LauncherFunc func(ctx context.Context, job Job) error

func (f LauncherFunc) Launch(ctx context.Context, job Job) error { return f(ctx, job) }

// Result: 单个分片的运行结果。
type Result struct {
	ShardID contract.ShardID
	Err     error
	Dur     time.Duration
}

// ShardError 携带失败分片的标识。
type ShardError struct {
	ShardID contract.ShardID
	Err     error
}

func (e *ShardError) Error() string { return fmt.Sprintf("shard %s: %v", e.ShardID, e.Err) }
func (e *ShardError) Unwrap() error { return e.Err }

// Run 以至多 parallel 个并发运行全部作业。
// 约束：
//  1. 单个分片失败不取消其他分片；全部失败汇总为 errors.Join 返回；
//  2. 结果按 jobs 顺序返回；
//  3. 返回前所有 goroutine 均已退出。
func Run(ctx context.Context, jobs []Job, l Launcher, parallel int, log *diag.Logger, term *diag.Terminal) ([]Result, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: launcher is required", contract.ErrInvalidConfig)
	}
	if parallel < 1 {
		return nil, fmt.Errorf("%w: parallel must be >= 1", contract.ErrInvalidConfig)
	}
	if log == nil {
		log = diag.Nop()
	}
	if err := makeDirs(jobs); err != nil {
		return nil, err
	}

	tm := log.StartWith(comp, "fleet start", "", "", zap.Int("shards", len(jobs)), zap.Int("parallel", parallel))
	term.RunStart(parallel, len(jobs))
	t0 := time.Now()

	results := make([]Result, len(jobs))
	var mu sync.Mutex
	var errs []error
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		i, job := i, job
		g.Go(func() error {
			id := job.Shard.ID
			start := time.Now()
			log.Info(comp, "launch shard", string(id), zap.String("source", job.Shard.Path))
			err := l.Launch(ctx, job)
			results[i] = Result{ShardID: id, Err: err, Dur: time.Since(start)}
			lines, kept := progressOf(job)
			term.ShardFinish(string(id), err == nil, lines, kept, results[i].Dur)
			if err != nil {
				log.ErrorWith(comp, diag.Classify(err), err.Error(), &start, string(id), "")
				mu.Lock()
				errs = append(errs, &ShardError{ShardID: id, Err: err})
				mu.Unlock()
			}
			// 失败隔离：不把错误交给 errgroup
			return nil
		})
	}
	_ = g.Wait()
	for i := range results {
		if results[i].ShardID == "" {
			// 取消后未启动的分片
			results[i] = Result{ShardID: jobs[i].Shard.ID, Err: ctx.Err()}
			errs = append(errs, &ShardError{ShardID: jobs[i].Shard.ID, Err: ctx.Err()})
		}
	}
	err := errors.Join(errs...)
	failed := len(errs)
	term.RunFinish(err == nil, time.Since(t0))
	if err != nil {
		log.ErrorWith(comp, diag.Classify(err), "fleet finished with failures", tm.Since(), "", "", zap.Int("failed", failed))
		return results, err
	}
	tm.Finish("fleet completed", int64(len(jobs)))
	return results, nil
}

// progressOf 读取子进程最近一次保存的检查点；不存在或不可读时返回 0。
func progressOf(job Job) (lines, kept int64) {
	st, err := checkpoint.New(job.CheckpointPath, job.Shard.ID)
	if err != nil {
		return 0, 0
	}
	cp, ok, err := st.Load(context.Background())
	if err != nil || !ok {
		return 0, 0
	}
	return int64(cp.LastProcessedLineNumber), cp.LinesKept
}

func makeDirs(jobs []Job) error {
	dirs := make(map[string]struct{})
	for _, j := range jobs {
		for _, p := range []string{j.TextPath, j.MetaPath, j.CheckpointPath} {
			dirs[filepath.Dir(p)] = struct{}{}
		}
		if j.LogDir != "" {
			dirs[j.LogDir] = struct{}{}
		}
	}
	for d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return nil
}
