package config

import "github.com/nareon/subtitles-cleaner/internal/classify"

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: fleet 模式的分片根（文件或目录）。
	Inputs     []string         `yaml:"inputs"`
	Classifier classify.Options `yaml:"classifier"`
	Worker     Worker           `yaml:"worker"`
	Fleet      Fleet            `yaml:"fleet"`
	Logging    Logging          `yaml:"logging"`
}

// Worker: 单分片处理参数。
type Worker struct {
	// BatchSize: 每批行数；批结束时 flush 输出并推进检查点。
	BatchSize int `yaml:"batch_size"`
}

// Fleet: 多分片并行参数。
type Fleet struct {
	// Parallel: 同时运行的 Worker 进程数上限。
	Parallel int `yaml:"parallel"`
	// OutDir: clean/meta/checkpoint 输出目录。
	OutDir string `yaml:"out_dir"`
	// Pattern: 目录扫描时的基名匹配（filepath.Match），空为全部。
	Pattern string `yaml:"pattern"`
}

// Logging: 日志等级与目录；文件名与轮转策略为固定默认。
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}
