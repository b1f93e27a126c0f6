package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nareon/subtitles-cleaner/internal/checkpoint"
	"github.com/nareon/subtitles-cleaner/internal/classify"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/internal/meta"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

const comp = "worker"

// Summary: 一次运行结束时的汇总（含续跑前已处理的行）。
type Summary struct {
	ShardID      contract.ShardID    `json:"shard_id"`
	State        State               `json:"state"`
	ResumedFrom  contract.LineNumber `json:"resumed_from"`
	Lines        int64               `json:"lines"`
	Kept         int64               `json:"kept"`
	Dropped      []meta.ReasonCount  `json:"dropped"`
	DecodeErrors int64               `json:"decode_errors"`
	Batches      int                 `json:"batches"`
}

// Run 顺序处理一个分片直到结束，期间每 BatchSize 行 flush 输出并推进检查点。
// 约束：
//  1. 每个输入行恰好产生一条元数据记录，行号严格递增、无间隙；
//  2. 先 flush+fsync 输出，再保存检查点；检查点之后的输出在续跑时被截掉并重算；
//  3. 从任一检查点续跑的最终输出与一次不间断运行逐字节相同；
//  4. 任何错误进入 Failed，已保存的检查点保持不变。
func Run(ctx context.Context, s Settings, log *diag.Logger) (Summary, error) {
	if log == nil {
		log = diag.Nop()
	}
	if err := s.normalize(); err != nil {
		log.Fail(comp, err, nil, string(s.ShardID))
		return Summary{ShardID: s.ShardID, State: Failed}, err
	}
	r := &shardRun{s: s, log: log, seen: classify.NewSeenSet(), tally: meta.NewTally()}
	t0 := time.Now()
	tm := log.StartWith(comp, "shard start", string(s.ShardID), "",
		zap.String("source", s.ShardPath), zap.Int("batch_size", s.BatchSize))

	err := r.exec(ctx)
	if cerr := r.close(err == nil); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		if r.to(Failed) != nil {
			// 已完成但关闭文件失败
			r.state = Failed
		}
		sum := r.summary()
		log.Fail(comp, err, tm.Since(), string(s.ShardID))
		s.Progress.ShardFinish(string(s.ShardID), false, sum.Lines, sum.Kept, time.Since(t0))
		return sum, err
	}
	sum := r.summary()
	fields := []zap.Field{
		zap.Int64("kept", sum.Kept),
		zap.Int64("dropped", r.tally.DroppedTotal()-sum.DecodeErrors),
		zap.Int64("decode_errors", sum.DecodeErrors),
		zap.Int64("resumed_from", int64(sum.ResumedFrom)),
	}
	for _, rc := range sum.Dropped {
		fields = append(fields, zap.Int64("dropped_"+string(rc.Reason), rc.Count))
	}
	tm.Finish("shard completed", sum.Lines, fields...)
	s.Progress.ShardFinish(string(s.ShardID), true, sum.Lines, sum.Kept, time.Since(t0))
	return sum, nil
}

// shardRun: 单次运行的可变状态，仅由调用 Run 的 goroutine 访问。
type shardRun struct {
	s     Settings
	log   *diag.Logger
	state State
	store *checkpoint.Store

	src   *os.File
	br    *bufio.Reader
	textF *os.File
	metaF *os.File
	tw    *bufio.Writer
	mw    *bufio.Writer
	enc   *meta.Encoder

	seen      *classify.SeenSet
	tally     *meta.Tally
	line      contract.LineNumber
	textBytes int64
	metaBytes int64
	pending   int
	batches   int
	saved     bool
	resumed   contract.LineNumber
}

func (r *shardRun) to(next State) error {
	if !r.state.canTransition(next) {
		return fmt.Errorf("%w: state %s -> %s", contract.ErrInvariantViolation, r.state, next)
	}
	r.state = next
	if h := r.s.hooks; h != nil && h.onState != nil {
		h.onState(next)
	}
	return nil
}

func (r *shardRun) exec(ctx context.Context) error {
	store, err := checkpoint.New(r.s.CheckpointPath, r.s.ShardID)
	if err != nil {
		return err
	}
	r.store = store
	cp, ok, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if err := r.to(Resuming); err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	if ok {
		if err := r.resume(cp); err != nil {
			return err
		}
	} else if err := r.reset(); err != nil {
		return err
	}
	r.s.Progress.ShardStart(string(r.s.ShardID), int64(r.resumed))

	if err := r.to(Streaming); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, more, err := r.next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if err := r.process(raw); err != nil {
			return err
		}
		if r.pending >= r.s.BatchSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
	// 尾批；空分片也落一个检查点，标记已完成
	if r.pending > 0 || !r.saved {
		if err := r.flush(ctx); err != nil {
			return err
		}
	}
	return r.to(Completed)
}

func openArtifact(p string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o644)
}

func (r *shardRun) open() error {
	src, err := os.Open(r.s.ShardPath)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	r.src = src
	r.br = bufio.NewReaderSize(src, 256*1024)
	if r.textF, err = openArtifact(r.s.TextPath); err != nil {
		return fmt.Errorf("open text output: %w", err)
	}
	if r.metaF, err = openArtifact(r.s.MetaPath); err != nil {
		return fmt.Errorf("open meta output: %w", err)
	}
	return nil
}

// reset: 无检查点时从头开始，丢弃残留输出。
func (r *shardRun) reset() error {
	for _, f := range []*os.File{r.textF, r.metaF} {
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("truncate %s: %w", f.Name(), err)
		}
	}
	return r.attachWriters()
}

// resume: 把输出截回检查点记录的长度，回放元数据重建 Seen-Set 与计数，再跳过已处理的源行。
func (r *shardRun) resume(cp contract.Checkpoint) error {
	for _, a := range []struct {
		f    *os.File
		want int64
	}{{r.textF, cp.TextBytes}, {r.metaF, cp.MetaBytes}} {
		st, err := a.f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", a.f.Name(), err)
		}
		if st.Size() < a.want {
			return fmt.Errorf("%w: %s has %d bytes, checkpoint records %d",
				contract.ErrArtifactMismatch, a.f.Name(), st.Size(), a.want)
		}
		if st.Size() > a.want {
			r.log.Warn(comp, "discard output written after last checkpoint", string(r.s.ShardID),
				zap.String("file", a.f.Name()), zap.Int64("extra_bytes", st.Size()-a.want))
		}
		if err := a.f.Truncate(a.want); err != nil {
			return fmt.Errorf("truncate %s: %w", a.f.Name(), err)
		}
	}
	if err := r.replayMeta(cp); err != nil {
		return err
	}
	if err := r.checkText(cp); err != nil {
		return err
	}
	for i := contract.LineNumber(0); i < cp.LastProcessedLineNumber; i++ {
		_, more, err := r.next()
		if err != nil {
			return err
		}
		if !more {
			return fmt.Errorf("%w: shard has %d lines, checkpoint at line %d",
				contract.ErrArtifactMismatch, i, cp.LastProcessedLineNumber)
		}
	}
	r.line = cp.LastProcessedLineNumber
	r.resumed = cp.LastProcessedLineNumber
	r.textBytes = cp.TextBytes
	r.metaBytes = cp.MetaBytes
	r.saved = true
	r.log.Info(comp, "resume from checkpoint", string(r.s.ShardID),
		zap.Int64("line", int64(cp.LastProcessedLineNumber)), zap.Int("seen", r.seen.Len()))
	return r.attachWriters()
}

func (r *shardRun) replayMeta(cp contract.Checkpoint) error {
	if _, err := r.metaF.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek meta: %w", err)
	}
	var want contract.LineNumber
	err := meta.Scan(io.LimitReader(r.metaF, cp.MetaBytes), func(rec contract.MetaRecord) error {
		want++
		if rec.LineNumber != want {
			return fmt.Errorf("%w: meta record %d has line_number %d", contract.ErrArtifactMismatch, want, rec.LineNumber)
		}
		if rec.ShardID != r.s.ShardID {
			return fmt.Errorf("%w: meta record %d belongs to shard %q", contract.ErrArtifactMismatch, want, rec.ShardID)
		}
		if rec.Outcome == contract.Kept {
			k, err := contract.ParseDedupKey(rec.Key)
			if err != nil {
				return fmt.Errorf("%w: meta record %d: %v", contract.ErrArtifactMismatch, want, err)
			}
			if !r.seen.Add(k) {
				return fmt.Errorf("%w: meta record %d keeps a duplicate key", contract.ErrArtifactMismatch, want)
			}
		}
		r.tally.AddRecord(rec)
		return nil
	})
	if err != nil {
		return err
	}
	if want != cp.LastProcessedLineNumber || r.tally.Kept != cp.LinesKept || r.tally.DroppedTotal() != cp.LinesDropped {
		return fmt.Errorf("%w: meta replay has %d lines (kept %d, dropped %d), checkpoint %d (kept %d, dropped %d)",
			contract.ErrArtifactMismatch, want, r.tally.Kept, r.tally.DroppedTotal(),
			cp.LastProcessedLineNumber, cp.LinesKept, cp.LinesDropped)
	}
	return nil
}

// checkText: 截断后的 clean 输出必须恰好是 LinesKept 个完整行。
func (r *shardRun) checkText(cp contract.Checkpoint) error {
	if _, err := r.textF.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek text: %w", err)
	}
	buf := make([]byte, 64*1024)
	lr := io.LimitReader(r.textF, cp.TextBytes)
	var lines int64
	var last byte
	for {
		n, err := lr.Read(buf)
		if n > 0 {
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
	}
	if lines != cp.LinesKept || (cp.TextBytes > 0 && last != '\n') {
		return fmt.Errorf("%w: text output has %d lines, checkpoint records %d kept",
			contract.ErrArtifactMismatch, lines, cp.LinesKept)
	}
	return nil
}

func (r *shardRun) attachWriters() error {
	for _, f := range []*os.File{r.textF, r.metaF} {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("seek %s: %w", f.Name(), err)
		}
	}
	r.tw = bufio.NewWriterSize(r.textF, 256*1024)
	r.mw = bufio.NewWriterSize(r.metaF, 256*1024)
	r.enc = meta.NewEncoder(r.mw)
	return nil
}

// next 读取下一行：按 \n 切分并去掉紧邻的 \r；末行无 \n 也算一行。
func (r *shardRun) next() ([]byte, bool, error) {
	b, err := r.br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("read shard: %w", err)
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	b = bytes.TrimSuffix(b, []byte{'\n'})
	b = bytes.TrimSuffix(b, []byte{'\r'})
	return b, true, nil
}

func (r *shardRun) process(raw []byte) error {
	r.line++
	var d contract.Decision
	if utf8.Valid(raw) {
		d = r.s.Classifier.Classify(string(raw), r.seen)
	} else {
		d = contract.Drop(contract.ReasonDecodeError)
	}
	rec := contract.MetaRecord{ShardID: r.s.ShardID, LineNumber: r.line, Outcome: d.Outcome, Reason: d.Reason}
	if d.IsKept() {
		if _, err := r.tw.WriteString(d.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		if err := r.tw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		r.textBytes += int64(len(d.Text) + 1)
		rec.Key = d.Key.String()
	}
	n, err := r.enc.Encode(rec)
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	r.metaBytes += int64(n)
	r.tally.Add(d.Outcome, d.Reason)
	r.pending++
	if h := r.s.hooks; h != nil && h.afterLine != nil {
		return h.afterLine(r.line)
	}
	return nil
}

// flush: 输出 flush+fsync 之后才保存检查点。
func (r *shardRun) flush(ctx context.Context) error {
	if err := r.to(Flushing); err != nil {
		return err
	}
	if err := r.tw.Flush(); err != nil {
		return fmt.Errorf("flush text: %w", err)
	}
	if err := r.mw.Flush(); err != nil {
		return fmt.Errorf("flush meta: %w", err)
	}
	if err := r.textF.Sync(); err != nil {
		return fmt.Errorf("sync text: %w", err)
	}
	if err := r.metaF.Sync(); err != nil {
		return fmt.Errorf("sync meta: %w", err)
	}
	if h := r.s.hooks; h != nil && h.afterFlush != nil {
		if err := h.afterFlush(r.line); err != nil {
			return err
		}
	}
	cp := contract.Checkpoint{
		ShardID:                 r.s.ShardID,
		LastProcessedLineNumber: r.line,
		LinesKept:               r.tally.Kept,
		LinesDropped:            r.tally.DroppedTotal(),
		TextBytes:               r.textBytes,
		MetaBytes:               r.metaBytes,
	}
	if err := r.store.Save(ctx, cp); err != nil {
		return err
	}
	r.saved = true
	r.pending = 0
	r.batches++
	r.log.Debug(comp, "checkpoint saved", string(r.s.ShardID), strconv.Itoa(r.batches),
		zap.Int64("line", int64(r.line)), zap.Int64("kept", r.tally.Kept))
	if h := r.s.hooks; h != nil && h.afterCheckpoint != nil {
		if err := h.afterCheckpoint(r.line); err != nil {
			return err
		}
	}
	r.s.Progress.ShardProgress(int64(r.line), r.tally.Kept)
	return r.to(Streaming)
}

// close 释放文件句柄。失败路径不 flush 缓冲区：检查点之后的数据本就会在续跑时重算。
func (r *shardRun) close(ok bool) error {
	var errs []error
	if r.src != nil {
		_ = r.src.Close()
	}
	for _, f := range []*os.File{r.textF, r.metaF} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && ok {
			errs = append(errs, fmt.Errorf("close %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *shardRun) summary() Summary {
	return Summary{
		ShardID:      r.s.ShardID,
		State:        r.state,
		ResumedFrom:  r.resumed,
		Lines:        int64(r.line),
		Kept:         r.tally.Kept,
		Dropped:      r.tally.Breakdown(),
		DecodeErrors: r.tally.DecodeErrors,
		Batches:      r.batches,
	}
}
