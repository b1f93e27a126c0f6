package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/nareon/subtitles-cleaner/internal/config"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/internal/worker"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

var workerRun = worker.Run

func newWorkerCmd(g *globalOpts) *cobra.Command {
	var (
		set      worker.Settings
		shardID  string
		progress bool
		cf       classifierFlags
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Classify one shard with checkpointed resume",
		Long: `worker 顺序处理一个分片：每行写出一条元数据，保留行写入 clean 文本，
每 batch_size 行 flush 并保存检查点。已有检查点时从其后一行续跑。
结束时在 stdout 打印 JSON 汇总。`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			over, err := cf.overlay(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := g.resolve(over)
			if err != nil {
				return err
			}
			cls, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return err
			}
			set.ShardID = contract.ShardID(shardID)
			if set.ShardID == "" {
				id, err := contract.ShardIDFromPath(set.ShardPath)
				if err != nil {
					return fmt.Errorf("%w: --shard: %v", contract.ErrInvalidConfig, err)
				}
				set.ShardID = id
			}
			set.BatchSize = cfg.Worker.BatchSize
			set.Classifier = cls
			set.Progress = diag.NewTerminal(cmd.ErrOrStderr(), progress)

			log := g.logger(cfg, shardLogPrefix(set.ShardID))
			defer log.Close()
			sum, err := workerRun(cmd.Context(), set, log)
			enc := json.NewEncoder(cmd.OutOrStdout())
			if jerr := enc.Encode(sum); jerr != nil && err == nil {
				err = jerr
			}
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&set.ShardPath, "shard", "", "分片源文件（必填）")
	fs.StringVar(&shardID, "shard-id", "", "分片标识；缺省取源文件基名去扩展名")
	fs.StringVar(&set.TextPath, "text-out", "", "clean 文本输出路径（必填）")
	fs.StringVar(&set.MetaPath, "meta-out", "", "元数据 JSONL 输出路径（必填）")
	fs.StringVar(&set.CheckpointPath, "checkpoint", "", "检查点路径（必填）")
	fs.BoolVar(&progress, "progress", true, "终端进度提示（stderr）")
	cf.register(fs)
	return cmd
}
