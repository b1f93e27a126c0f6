package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/nareon/subtitles-cleaner/internal/config"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/internal/fleet"
	"github.com/nareon/subtitles-cleaner/internal/shard"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

var (
	fleetRun    = fleet.Run
	newLauncher = func(l *fleet.ExecLauncher) fleet.Launcher { return l }
)

func newFleetCmd(g *globalOpts) *cobra.Command {
	var (
		parallel int
		outDir   string
		pattern  string
		progress bool
		cf       classifierFlags
	)
	cmd := &cobra.Command{
		Use:   "fleet [roots...]",
		Short: "Run one worker process per shard in parallel",
		Long: `fleet 在输入根（文件或目录）中发现分片，按稳定顺序为每个分片启动一个
独立的 worker 进程，并发数受 parallel 限制。单个分片失败不影响其他分片；
重新运行时各分片从自己的检查点续跑。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			over, err := cf.overlay(cmd.Flags())
			if err != nil {
				return err
			}
			over.Inputs = args
			over.Fleet = cfgpkg.Fleet{Parallel: parallel, OutDir: outDir, Pattern: pattern}
			cfg, err := g.resolve(over)
			if err != nil {
				return err
			}
			if err := cfgpkg.ValidateFleet(cfg); err != nil {
				return err
			}
			ctx := cmd.Context()
			log := g.logger(cfg, "subclean-fleet")
			defer log.Close()

			shards, err := shard.Discover(ctx, cfg.Inputs, cfg.Fleet.Pattern)
			if err != nil {
				log.Fail("fleet", err, nil, "")
				return err
			}
			if len(shards) == 0 {
				return fmt.Errorf("%w: no shards match %q under %v", contract.ErrInvalidConfig, cfg.Fleet.Pattern, cfg.Inputs)
			}
			log.Debug("config", "effective", "", "",
				zap.Strings("inputs", cfg.Inputs),
				zap.Int("shards", len(shards)),
				zap.Int("parallel", cfg.Fleet.Parallel),
				zap.Int("batch_size", cfg.Worker.BatchSize),
				zap.Int("min_length", cfg.Classifier.MinLength),
				zap.Int("max_length", cfg.Classifier.MaxLength),
			)

			jobs := fleet.Plan(shards, cfg.Fleet.OutDir, cfg.Logging.Dir)
			extra := forwardArgs(cmd.Flags(), forwarded...)
			if g.logLevel != "" {
				extra = append(extra, "--log-level="+g.logLevel)
			}
			l := &fleet.ExecLauncher{
				ConfigPath: g.resolvedConfigPath(),
				CorrID:     g.corrID,
				ExtraArgs:  extra,
			}
			term := diag.NewTerminal(cmd.ErrOrStderr(), progress)
			results, runErr := fleetRun(ctx, jobs, newLauncher(l), cfg.Fleet.Parallel, log, term)
			printResults(cmd, results)
			return runErr
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&parallel, "parallel", 0, "并发 worker 进程数（覆盖配置）")
	fs.StringVar(&outDir, "out-dir", "", "输出目录（覆盖配置）")
	fs.StringVar(&pattern, "pattern", "", "目录扫描的基名匹配（覆盖配置）")
	fs.BoolVar(&progress, "progress", true, "终端进度提示（stderr）")
	cf.register(fs)
	return cmd
}

func printResults(cmd *cobra.Command, results []fleet.Result) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fprintf(tw, "SHARD\tSTATUS\tDURATION\n")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed"
		}
		fprintf(tw, "%s\t%s\t%s\n", r.ShardID, status, r.Dur.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
