package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/nareon/subtitles-cleaner/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default subclean.yaml and .env template",
		Long: `init-config 在指定目录（缺省当前目录）生成默认配置 subclean.yaml 与 .env 模板。
已存在的文件跳过，不覆盖。dir 为 "-" 时把配置打印到 stdout。`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			cfg := cfgpkg.DefaultTemplateConfig()
			if dir == "-" {
				b, err := cfgpkg.MarshalYAML(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			cfgPath := filepath.Join(dir, defaultConfigFile)
			wrote, err := writeConfig(cfgPath, cfg)
			if err != nil {
				return err
			}
			if !wrote {
				fprintf(cmd.ErrOrStderr(), "已存在，跳过: %s\n", cfgPath)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// writeConfig 以 O_EXCL 写出配置；文件已存在时返回 (false, nil)。
func writeConfig(path string, c cfgpkg.Config) (bool, error) {
	b, err := cfgpkg.MarshalYAML(c)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# subclean .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > YAML > 默认\n")
	b.WriteString("# 空值表示未设置。\n\n")
	b.WriteString("SUBCLEAN_CONFIG_FILE=\n")
	b.WriteString("SUBCLEAN_INPUTS=\n\n")
	b.WriteString("# 分类阈值\n")
	for _, k := range []string{"MIN_LENGTH", "MAX_LENGTH", "MAX_DIGIT_RATIO", "MAX_SYMBOL_RATIO", "CREDIT_PHRASES"} {
		b.WriteString("SUBCLEAN_CLASSIFIER_" + k + "=\n")
	}
	b.WriteString("\n# 运行参数\n")
	b.WriteString("SUBCLEAN_WORKER_BATCH_SIZE=\n")
	b.WriteString("SUBCLEAN_FLEET_PARALLEL=\n")
	b.WriteString("SUBCLEAN_FLEET_OUT_DIR=\n")
	b.WriteString("SUBCLEAN_FLEET_PATTERN=\n")
	b.WriteString("SUBCLEAN_LOGGING_LEVEL=\n")
	b.WriteString("SUBCLEAN_LOGGING_DIR=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
