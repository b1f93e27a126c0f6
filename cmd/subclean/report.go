package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nareon/subtitles-cleaner/internal/checkpoint"
	"github.com/nareon/subtitles-cleaner/internal/fleet"
	"github.com/nareon/subtitles-cleaner/internal/meta"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// reportRow: 单个元数据流（或总计）的汇总。
type reportRow struct {
	Path         string             `json:"path,omitempty"`
	ShardID      contract.ShardID   `json:"shard_id,omitempty"`
	Lines        int64              `json:"lines"`
	Kept         int64              `json:"kept"`
	Dropped      []meta.ReasonCount `json:"dropped"`
	DecodeErrors int64              `json:"decode_errors"`
	// Committed 为真时只统计到同目录检查点记录的 meta_bytes 为止。
	Committed bool `json:"committed,omitempty"`
}

type report struct {
	Shards []reportRow `json:"shards"`
	Total  reportRow   `json:"total"`
}

func rowOf(t *meta.Tally) reportRow {
	return reportRow{Lines: t.Total, Kept: t.Kept, Dropped: t.Breakdown(), DecodeErrors: t.DecodeErrors}
}

// committedBytes 读取元数据文件旁的检查点，返回已提交的元数据长度；无检查点时 ok 为 false。
// 检查点自带分片标识，文件名只用于定位。
func committedBytes(ctx context.Context, metaPath string) (n int64, ok bool, err error) {
	ckpt, named := fleet.CheckpointFor(metaPath)
	if !named {
		return 0, false, nil
	}
	b, err := os.ReadFile(ckpt)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	head, err := checkpoint.Decode(b)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", contract.ErrCorruptCheckpoint, ckpt, err)
	}
	st, err := checkpoint.New(ckpt, head.ShardID)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", contract.ErrCorruptCheckpoint, ckpt, err)
	}
	cp, ok, err := st.Load(ctx)
	if err != nil || !ok {
		return 0, false, err
	}
	return cp.MetaBytes, true, nil
}

// buildReport 扫描每个元数据文件并汇总；任何文件不可读或含非法记录即失败。
// 同目录存在检查点时只统计已提交部分，检查点之后的记录会在续跑时被截掉。
func buildReport(ctx context.Context, paths []string) (report, error) {
	var rep report
	total := meta.NewTally()
	for _, p := range paths {
		t := meta.NewTally()
		var id contract.ShardID
		var committed bool
		err := func() error {
			limit, ok, err := committedBytes(ctx, p)
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			var r io.Reader = f
			if ok {
				r, committed = io.LimitReader(f, limit), true
			}
			return meta.Scan(r, func(rec contract.MetaRecord) error {
				if id == "" {
					id = rec.ShardID
				}
				t.AddRecord(rec)
				return nil
			})
		}()
		if err != nil {
			return rep, fmt.Errorf("%s: %w", p, err)
		}
		row := rowOf(t)
		row.Path, row.ShardID, row.Committed = p, id, committed
		rep.Shards = append(rep.Shards, row)
		total.Merge(t)
	}
	rep.Total = rowOf(total)
	return rep, nil
}

func writeReportText(w io.Writer, rep report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fprintf(tw, "SHARD\tLINES\tKEPT\tDROPPED\tDECODE_ERRORS\n")
	dropped := func(r reportRow) int64 {
		var n int64
		for _, rc := range r.Dropped {
			n += rc.Count
		}
		return n
	}
	for _, r := range rep.Shards {
		fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", r.ShardID, r.Lines, r.Kept, dropped(r), r.DecodeErrors)
	}
	fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\n", rep.Total.Lines, rep.Total.Kept, dropped(rep.Total), rep.Total.DecodeErrors)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rep.Total.Dropped) == 0 {
		return nil
	}
	fprintf(w, "\n")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fprintf(tw, "REASON\tCOUNT\n")
	for _, rc := range rep.Total.Dropped {
		fprintf(tw, "%s\t%d\n", rc.Reason, rc.Count)
	}
	return tw.Flush()
}

func newReportCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <meta.jsonl>...",
		Short: "Aggregate per-line metadata into kept/dropped counts",
		Long: `report 汇总元数据 JSONL 的保留与丢弃计数。
若 <name>.meta.jsonl 旁存在 <name>.ckpt.json，只统计检查点已提交的部分；
运行中分片检查点之后的记录会在续跑时被截掉重算，不计入报告。`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := buildReport(cmd.Context(), args)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return writeReportText(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}
