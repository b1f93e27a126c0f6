package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nareon/subtitles-cleaner/internal/classify"
	"github.com/nareon/subtitles-cleaner/internal/worker"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// EnvPrefix 为环境变量覆盖前缀。
const EnvPrefix = "SUBCLEAN_"

// Defaults 返回带有安全默认值的 Config。
func Defaults() Config {
	return Config{
		Classifier: classify.Defaults(),
		Worker:     Worker{BatchSize: worker.DefaultBatchSize},
		Fleet:      Fleet{Parallel: 4, OutDir: "out", Pattern: "*.txt"},
		Logging:    Logging{Level: "info", Dir: "logs"},
	}
}

// Unset 返回“全部未设置”的覆盖层。
// MinLength 的 0 具有语义，用 -1 表示未覆盖。
func Unset() Config {
	return Config{Classifier: classify.Options{MinLength: -1}}
}

// LoadYAML 从文件路径或原始 YAML 解析，未出现的键保留 base 中的值（严格拒绝未知字段）。
func LoadYAML(path string, raw []byte, base Config) (Config, error) {
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return base, fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
		}
		defer f.Close()
		r = f
	default:
		return base, errors.New("no config source provided")
	}
	cfg := base
	cfg.Classifier.CreditPhrases = cloneStrings(base.Classifier.CreditPhrases)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件
			return base, nil
		}
		return base, fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 零值（MinLength 为 -1）视为未覆盖；切片整体替换，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Classifier.MinLength >= 0 {
		out.Classifier.MinLength = over.Classifier.MinLength
	}
	if over.Classifier.MaxLength != 0 {
		out.Classifier.MaxLength = over.Classifier.MaxLength
	}
	if over.Classifier.MaxDigitRatio != 0 {
		out.Classifier.MaxDigitRatio = over.Classifier.MaxDigitRatio
	}
	if over.Classifier.MaxSymbolRatio != 0 {
		out.Classifier.MaxSymbolRatio = over.Classifier.MaxSymbolRatio
	}
	if over.Classifier.CreditPhrases != nil {
		out.Classifier.CreditPhrases = cloneStrings(over.Classifier.CreditPhrases)
	}
	if over.Worker.BatchSize != 0 {
		out.Worker.BatchSize = over.Worker.BatchSize
	}
	if over.Fleet.Parallel != 0 {
		out.Fleet.Parallel = over.Fleet.Parallel
	}
	if s := strings.TrimSpace(over.Fleet.OutDir); s != "" {
		out.Fleet.OutDir = s
	}
	if s := strings.TrimSpace(over.Fleet.Pattern); s != "" {
		out.Fleet.Pattern = s
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	return out
}

// EnvOverlay 从环境变量构建覆盖层（前缀 SUBCLEAN_，仅解析有限键集合，其余忽略）。
// 空值视为未设置；数值无法解析或整数为负时返回 ErrInvalidConfig。
func EnvOverlay(environ []string) (Config, error) {
	over := Unset()
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		if strings.TrimSpace(val) == "" {
			// 空值视为未设置（.env 模板中的占位项）
			continue
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CLASSIFIER_MIN_LENGTH":
			over.Classifier.MinLength, err = atoi(key, val)
		case "CLASSIFIER_MAX_LENGTH":
			over.Classifier.MaxLength, err = atoi(key, val)
		case "CLASSIFIER_MAX_DIGIT_RATIO":
			over.Classifier.MaxDigitRatio, err = atof(key, val)
		case "CLASSIFIER_MAX_SYMBOL_RATIO":
			over.Classifier.MaxSymbolRatio, err = atof(key, val)
		case "CLASSIFIER_CREDIT_PHRASES":
			over.Classifier.CreditPhrases = splitComma(val)
		case "WORKER_BATCH_SIZE":
			over.Worker.BatchSize, err = atoi(key, val)
		case "FLEET_PARALLEL":
			over.Fleet.Parallel, err = atoi(key, val)
		case "FLEET_OUT_DIR":
			over.Fleet.OutDir = strings.TrimSpace(val)
		case "FLEET_PATTERN":
			over.Fleet.Pattern = strings.TrimSpace(val)
		case "LOGGING_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOGGING_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		}
		if err != nil {
			return over, err
		}
	}
	return over, nil
}

// Resolve 按 默认 → YAML 文件 → ENV → flags 的顺序合并并校验。
// path 为空时跳过文件层。
func Resolve(path string, environ []string, flags Config) (Config, error) {
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = LoadYAML(path, nil, cfg); err != nil {
			return cfg, err
		}
	}
	env, err := EnvOverlay(environ)
	if err != nil {
		return cfg, err
	}
	cfg = Merge(Merge(cfg, env), flags)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func atoi(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s=%q is not an integer", contract.ErrInvalidConfig, EnvPrefix, key, s)
	}
	// 负数不会被 Merge 采纳，必须在此拒绝
	if n < 0 {
		return 0, fmt.Errorf("%w: %s%s=%d must be >= 0", contract.ErrInvalidConfig, EnvPrefix, key, n)
	}
	return n, nil
}

func atof(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s=%q is not a number", contract.ErrInvalidConfig, EnvPrefix, key, s)
	}
	return f, nil
}
