package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nareon/subtitles-cleaner/internal/classify"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Validate 对最小必要边界做静态校验；错误包裹 contract.ErrInvalidConfig。
func Validate(cfg Config) error {
	if err := cfg.Classifier.Validate(); err != nil {
		return err
	}
	if cfg.Worker.BatchSize < 1 {
		return fmt.Errorf("%w: worker.batch_size must be >= 1", contract.ErrInvalidConfig)
	}
	if cfg.Fleet.Parallel < 1 {
		return fmt.Errorf("%w: fleet.parallel must be >= 1", contract.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Fleet.OutDir) == "" {
		return fmt.Errorf("%w: fleet.out_dir cannot be empty", contract.ErrInvalidConfig)
	}
	if cfg.Fleet.Pattern != "" {
		if _, err := filepath.Match(cfg.Fleet.Pattern, ""); err != nil {
			return fmt.Errorf("%w: fleet.pattern %q: %v", contract.ErrInvalidConfig, cfg.Fleet.Pattern, err)
		}
	}
	if !diag.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("%w: logging.level %q (want debug|info|warn|error)", contract.ErrInvalidConfig, cfg.Logging.Level)
	}
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: input path cannot be empty", contract.ErrInvalidConfig)
		}
	}
	return nil
}

// ValidateFleet 在 Validate 之外要求至少一个输入根。
func ValidateFleet(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("%w: inputs empty", contract.ErrInvalidConfig)
	}
	return nil
}

// Assemble 校验配置并构造分类器。
func Assemble(cfg Config) (*classify.Classifier, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return classify.New(cfg.Classifier)
}
