package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "github.com/nareon/subtitles-cleaner/internal/config"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// 退出码：0 成功；1 运行失败；3 配置错误（处理任何行之前即被拒绝）。
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 3
)

// defaultConfigFile 为工作目录下自动读取的配置文件名。
const defaultConfigFile = "subclean.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	if errors.Is(err, contract.ErrInvalidConfig) {
		fprintf(stderr, "配置错误: %v\n", err)
		return exitConfig
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(stderr, "运行失败: %v\n", err)
	}
	return exitFailed
}

// globalOpts: 所有子命令共享的持久旗标。
type globalOpts struct {
	configPath string
	logLevel   string
	logDir     string
	corrID     string
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}
	root := &cobra.Command{
		Use:   "subclean",
		Short: "Spanish subtitle corpus cleaner",
		Long: `subclean 逐行分类西班牙语字幕语料：保留可用于语言学习的句子，
丢弃时间轴、署名、标记与重复行，并为每一行写出 JSONL 元数据。
长时间运行的分片按批保存检查点，中断后从检查点续跑，结果与一次不间断运行逐字节相同。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.corrID == "" {
				g.corrID = uuid.NewString()
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML 配置文件；缺省读取 $SUBCLEAN_CONFIG_FILE 或 ./"+defaultConfigFile+"（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringVar(&g.logDir, "log-dir", "", "日志目录（覆盖配置）")
	pf.StringVar(&g.corrID, "corr-id", "", "关联 ID；缺省随机生成")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
	})

	root.AddCommand(
		newWorkerCmd(g),
		newFleetCmd(g),
		newSplitCmd(),
		newSampleCmd(),
		newReportCmd(),
		newInitConfigCmd(),
	)
	return root
}

// resolvedConfigPath 按 --config → $SUBCLEAN_CONFIG_FILE → ./subclean.yaml 的顺序确定配置文件。
func (g *globalOpts) resolvedConfigPath() string {
	if g.configPath != "" {
		return g.configPath
	}
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE"); s != "" {
		return s
	}
	if st, err := os.Stat(defaultConfigFile); err == nil && !st.IsDir() {
		return defaultConfigFile
	}
	return ""
}

// resolve 合并 默认 → 文件 → ENV → 命令行覆盖层，并校验。
func (g *globalOpts) resolve(over cfgpkg.Config) (cfgpkg.Config, error) {
	over.Logging.Level = g.logLevel
	over.Logging.Dir = g.logDir
	return cfgpkg.Resolve(g.resolvedConfigPath(), os.Environ(), over)
}

// logger 以最终配置构造日志器；每个进程独占一个日志文件前缀。
func (g *globalOpts) logger(cfg cfgpkg.Config, prefix string) *diag.Logger {
	return diag.NewLogger(g.corrID, cfg.Logging.Level, cfg.Logging.Dir, prefix)
}

// classifierFlags: worker 与 fleet 共用的分类阈值覆盖项。
type classifierFlags struct {
	minLength      int
	maxLength      int
	maxDigitRatio  float64
	maxSymbolRatio float64
	batchSize      int
}

// forwarded 为 fleet 需要原样透传给子进程的旗标名。
var forwarded = []string{"min-length", "max-length", "max-digit-ratio", "max-symbol-ratio", "batch-size"}

func (c *classifierFlags) register(fs *pflag.FlagSet) {
	// min-length 允许显式设置为 0；是否覆盖以 Changed 判断。
	fs.IntVar(&c.minLength, "min-length", 0, "最短保留长度（rune，覆盖配置）")
	fs.IntVar(&c.maxLength, "max-length", 0, "最长保留长度（rune，覆盖配置）")
	fs.Float64Var(&c.maxDigitRatio, "max-digit-ratio", 0, "数字占比上限（覆盖配置）")
	fs.Float64Var(&c.maxSymbolRatio, "max-symbol-ratio", 0, "符号占比上限（覆盖配置）")
	fs.IntVar(&c.batchSize, "batch-size", 0, "每批行数（覆盖配置）")
}

// overlay 只采用显式设置过的旗标；负数长度或批大小视为配置错误。
func (c *classifierFlags) overlay(fs *pflag.FlagSet) (cfgpkg.Config, error) {
	over := cfgpkg.Unset()
	for _, f := range []struct {
		name string
		v    int
	}{{"min-length", c.minLength}, {"max-length", c.maxLength}, {"batch-size", c.batchSize}} {
		if fs.Changed(f.name) && f.v < 0 {
			return over, fmt.Errorf("%w: --%s must be >= 0, got %d", contract.ErrInvalidConfig, f.name, f.v)
		}
	}
	if fs.Changed("min-length") {
		over.Classifier.MinLength = c.minLength
	}
	over.Classifier.MaxLength = c.maxLength
	over.Classifier.MaxDigitRatio = c.maxDigitRatio
	over.Classifier.MaxSymbolRatio = c.maxSymbolRatio
	over.Worker.BatchSize = c.batchSize
	return over, nil
}

// forwardArgs 收集显式设置过的覆盖旗标，供子进程复用。
func forwardArgs(fs *pflag.FlagSet, names ...string) []string {
	var out []string
	for _, n := range names {
		if f := fs.Lookup(n); f != nil && f.Changed {
			out = append(out, "--"+n+"="+f.Value.String())
		}
	}
	return out
}

// usageArgs 把位置参数错误归为配置错误（退出码 3）。
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
		}
		return nil
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；若 value 被成对的单/双引号包裹，则去除外层引号；
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				val = val[1 : len(val)-1]
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// shardLogPrefix 返回分片进程的日志文件前缀。
func shardLogPrefix(id contract.ShardID) string {
	return "subclean-" + filepath.Base(string(id))
}
