package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nareon/subtitles-cleaner/internal/classify"
	"github.com/nareon/subtitles-cleaner/internal/worker"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// 解析完整 basic.yaml：出现的键覆盖默认，未出现的键保留默认。
func TestLoadYAML(t *testing.T) {
	cfg, err := LoadYAML("../../testdata/config/basic.yaml", nil, Defaults())
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Classifier.MinLength != 10 || cfg.Classifier.MaxLength != 200 {
		t.Fatalf("长度阈值映射错误: %+v", cfg.Classifier)
	}
	if cfg.Classifier.MaxDigitRatio != classify.Defaults().MaxDigitRatio {
		t.Fatalf("未出现的键应保留默认: %v", cfg.Classifier.MaxDigitRatio)
	}
	if len(cfg.Classifier.CreditPhrases) != 2 {
		t.Fatalf("短语列表应整体替换: %v", cfg.Classifier.CreditPhrases)
	}
	if cfg.Worker.BatchSize != 500 || cfg.Fleet.Parallel != 2 || cfg.Logging.Level != "debug" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if cfg.Logging.Dir != "logs" {
		t.Fatalf("logging.dir 应保留默认 实得 %q", cfg.Logging.Dir)
	}
	if len(cfg.Inputs) != 1 || cfg.Inputs[0] != "testdata/shards" {
		t.Fatalf("inputs 错误: %v", cfg.Inputs)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
}

// 解析不得修改 base 中的切片。
func TestLoadYAMLKeepsBase(t *testing.T) {
	base := Defaults()
	n := len(base.Classifier.CreditPhrases)
	if _, err := LoadYAML("", []byte("classifier:\n  credit_phrases: [a]\n"), base); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(base.Classifier.CreditPhrases) != n || base.Classifier.CreditPhrases[0] != classify.DefaultCreditPhrases()[0] {
		t.Fatalf("base 被修改: %v", base.Classifier.CreditPhrases)
	}
}

func TestLoadYAMLUnknown(t *testing.T) {
	for _, raw := range []string{
		"unknown: 1\n",
		"classifier:\n  min_len: 3\n",
		"worker: [1, 2]\n",
	} {
		_, err := LoadYAML("", []byte(raw), Defaults())
		if err == nil {
			t.Fatalf("应当返回错误: %q", raw)
		}
		if !errors.Is(err, contract.ErrInvalidConfig) {
			t.Fatalf("错误应包裹 ErrInvalidConfig: %v", err)
		}
	}
}

func TestLoadYAMLSources(t *testing.T) {
	if _, err := LoadYAML("", nil, Defaults()); err == nil {
		t.Fatalf("无来源应当返回错误")
	}
	if _, err := LoadYAML("does/not/exist.yaml", nil, Defaults()); !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("文件不存在应当返回 ErrInvalidConfig: %v", err)
	}
	// 仅注释的文件等同空文件
	cfg, err := LoadYAML("", []byte("# empty\n"), Defaults())
	if err != nil {
		t.Fatalf("空文档不应报错: %v", err)
	}
	if cfg.Worker.BatchSize != worker.DefaultBatchSize {
		t.Fatalf("空文档应返回 base: %+v", cfg)
	}
}

func TestEnvOverlay(t *testing.T) {
	env := []string{
		"SUBCLEAN_INPUTS=a,b",
		"SUBCLEAN_CLASSIFIER_MIN_LENGTH=0",
		"SUBCLEAN_CLASSIFIER_MAX_DIGIT_RATIO=0.3",
		"SUBCLEAN_CLASSIFIER_CREDIT_PHRASES=sync by, ripped by",
		"SUBCLEAN_WORKER_BATCH_SIZE=64",
		"SUBCLEAN_FLEET_PARALLEL=3",
		"SUBCLEAN_LOGGING_LEVEL=warn",
		"SUBCLEAN_UNKNOWN=1",
		"PATH=/usr/bin",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if len(over.Inputs) != 2 || over.Fleet.Parallel != 3 || over.Worker.BatchSize != 64 {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.Classifier.MinLength != 0 || over.Classifier.MaxDigitRatio != 0.3 {
		t.Fatalf("分类阈值覆盖不正确: %+v", over.Classifier)
	}
	if len(over.Classifier.CreditPhrases) != 2 || over.Classifier.CreditPhrases[1] != "ripped by" {
		t.Fatalf("短语覆盖不正确: %v", over.Classifier.CreditPhrases)
	}
	cfg := Merge(Defaults(), over)
	if cfg.Classifier.MinLength != 0 || cfg.Logging.Level != "warn" {
		t.Fatalf("合并结果不正确: %+v", cfg)
	}
	if cfg.Classifier.MaxLength != classify.Defaults().MaxLength {
		t.Fatalf("未覆盖字段应保留: %+v", cfg.Classifier)
	}
}

// 空值（.env 模板占位）不覆盖任何字段。
func TestEnvOverlayEmptyValues(t *testing.T) {
	over, err := EnvOverlay([]string{
		"SUBCLEAN_CLASSIFIER_CREDIT_PHRASES=",
		"SUBCLEAN_WORKER_BATCH_SIZE=",
		"SUBCLEAN_CLASSIFIER_MIN_LENGTH= ",
	})
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	cfg := Merge(Defaults(), over)
	if len(cfg.Classifier.CreditPhrases) != len(classify.DefaultCreditPhrases()) {
		t.Fatalf("空值不应清空短语: %v", cfg.Classifier.CreditPhrases)
	}
	if cfg.Worker.BatchSize != worker.DefaultBatchSize || cfg.Classifier.MinLength != classify.Defaults().MinLength {
		t.Fatalf("空值不应覆盖: %+v", cfg)
	}
}

func TestEnvOverlayBadNumber(t *testing.T) {
	for _, kv := range []string{
		"SUBCLEAN_WORKER_BATCH_SIZE=ten",
		"SUBCLEAN_CLASSIFIER_MAX_SYMBOL_RATIO=x",
		"SUBCLEAN_CLASSIFIER_MIN_LENGTH=-3",
		"SUBCLEAN_FLEET_PARALLEL=-1",
	} {
		_, err := EnvOverlay([]string{kv})
		if !errors.Is(err, contract.ErrInvalidConfig) {
			t.Fatalf("%s 应返回 ErrInvalidConfig 实得 %v", kv, err)
		}
	}
}

// 负数不得静默回落到默认值。
func TestResolveRejectsNegativeMinLength(t *testing.T) {
	_, err := Resolve("", []string{"SUBCLEAN_CLASSIFIER_MIN_LENGTH=-3"}, Unset())
	if !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("期望 ErrInvalidConfig 实得 %v", err)
	}
	_, err = Resolve(filepath.Join(t.TempDir(), "absent.yaml"), nil, Unset())
	if !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("配置文件缺失应为配置错误: %v", err)
	}
}

// Unset 覆盖层不改变任何字段。
func TestMergeUnset(t *testing.T) {
	def := Defaults()
	got := Merge(def, Unset())
	if got.Classifier.MinLength != def.Classifier.MinLength || got.Fleet != def.Fleet || got.Logging != def.Logging {
		t.Fatalf("Unset 不应覆盖: %+v", got)
	}
}

// 优先级：flags > ENV > 文件 > 默认。
func TestResolve(t *testing.T) {
	flags := Unset()
	flags.Worker.BatchSize = 7
	env := []string{"SUBCLEAN_WORKER_BATCH_SIZE=64", "SUBCLEAN_FLEET_PARALLEL=5"}
	cfg, err := Resolve("../../testdata/config/basic.yaml", env, flags)
	if err != nil {
		t.Fatalf("Resolve 失败: %v", err)
	}
	if cfg.Worker.BatchSize != 7 {
		t.Fatalf("flags 应最高优先 实得 %d", cfg.Worker.BatchSize)
	}
	if cfg.Fleet.Parallel != 5 {
		t.Fatalf("ENV 应覆盖文件 实得 %d", cfg.Fleet.Parallel)
	}
	if cfg.Classifier.MinLength != 10 {
		t.Fatalf("文件应覆盖默认 实得 %d", cfg.Classifier.MinLength)
	}

	bad := Unset()
	bad.Fleet.Parallel = -1
	if _, err := Resolve("", nil, bad); !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("非法 parallel 应被拒绝: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("默认配置应合法: %v", err)
	}
	cases := map[string]func(c *Config){
		"batch":     func(c *Config) { c.Worker.BatchSize = 0 },
		"parallel":  func(c *Config) { c.Fleet.Parallel = 0 },
		"out_dir":   func(c *Config) { c.Fleet.OutDir = " " },
		"pattern":   func(c *Config) { c.Fleet.Pattern = "[" },
		"level":     func(c *Config) { c.Logging.Level = "verbose" },
		"input":     func(c *Config) { c.Inputs = []string{""} },
		"min > max": func(c *Config) { c.Classifier.MinLength = 500 },
	}
	for name, mut := range cases {
		c := Defaults()
		mut(&c)
		if err := Validate(c); !errors.Is(err, contract.ErrInvalidConfig) {
			t.Fatalf("%s: 期望 ErrInvalidConfig 实得 %v", name, err)
		}
	}
	if err := ValidateFleet(Defaults()); !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("fleet 模式缺少 inputs 应被拒绝: %v", err)
	}
}

func TestAssemble(t *testing.T) {
	c, err := Assemble(Defaults())
	if err != nil || c == nil {
		t.Fatalf("Assemble 失败: %v", err)
	}
	d := c.Classify("00:00:01,000 --> 00:00:03,000", classify.NewSeenSet())
	if d.Reason != contract.ReasonTimestamp {
		t.Fatalf("分类器未按默认阈值构造: %+v", d)
	}
	bad := Defaults()
	bad.Worker.BatchSize = -1
	if _, err := Assemble(bad); err == nil {
		t.Fatalf("非法配置应被拒绝")
	}
}

// 模板可被严格解析回相同配置且通过校验。
func TestTemplateRoundTrip(t *testing.T) {
	tpl := DefaultTemplateConfig()
	b, err := MarshalYAML(tpl)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	for _, key := range []string{"classifier:", "min_length:", "batch_size:", "parallel:", "level:"} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("模板缺少 %s:\n%s", key, b)
		}
	}
	got, err := LoadYAML("", b, Config{})
	if err != nil {
		t.Fatalf("模板回读失败: %v", err)
	}
	if err := ValidateFleet(got); err != nil {
		t.Fatalf("模板应合法: %v", err)
	}
	if got.Worker != tpl.Worker || got.Fleet != tpl.Fleet || len(got.Classifier.CreditPhrases) != len(tpl.Classifier.CreditPhrases) {
		t.Fatalf("回读不一致: %+v", got)
	}
}

func TestSplitCommaAtoi(t *testing.T) {
	parts := splitComma("a, b , ,c")
	if len(parts) != 3 || parts[1] != "b" {
		t.Fatalf("splitComma 结果错误: %v", parts)
	}
	if splitComma(" , ") != nil {
		t.Fatalf("全空应返回 nil")
	}
	if v, err := atoi("X", " 10 "); err != nil || v != 10 {
		t.Fatalf("atoi 失败: %v %d", err, v)
	}
}
