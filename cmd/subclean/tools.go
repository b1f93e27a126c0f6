package main

import (
	"github.com/spf13/cobra"

	"github.com/nareon/subtitles-cleaner/internal/shard"
)

func newSplitCmd() *cobra.Command {
	var (
		parts  int
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "split <src>",
		Short: "Split a corpus file into contiguous line-aligned shards",
		Long: `split 将一个语料文件切分为 parts 个连续、按行对齐的分片
（<base>.part-NNN<ext>），各分片行数至多相差 1，逐字节拼接等于原文件。`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = "."
			}
			paths, err := shard.Split(cmd.Context(), args[0], outDir, parts)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fprintf(cmd.OutOrStdout(), "%s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parts, "parts", "n", 0, "分片数（必填，>=1）")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "分片输出目录（缺省当前目录）")
	return cmd
}

func newSampleCmd() *cobra.Command {
	var every int
	cmd := &cobra.Command{
		Use:   "sample <src> <dst>",
		Short: "Keep every N-th line of a corpus file",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := shard.Sample(cmd.Context(), args[0], args[1], every)
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%d lines -> %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&every, "every", shard.DefaultSampleEvery, "每 N 行保留 1 行")
	return cmd
}
