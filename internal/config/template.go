package config

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个可直接运行的默认配置模板：
// 全部键都出现（值为默认），输入为 ./corpus 目录，输出到 ./out。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = []string{"corpus"}
	return cfg
}

// MarshalYAML 以两空格缩进编码配置。
func MarshalYAML(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
