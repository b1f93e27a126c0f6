package classify

import (
	"fmt"
	"strings"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Options: 分类器阈值（全部为配置输入，不在规则中硬编码）。
type Options struct {
	// MinLength/MaxLength: 规范化后文本的 rune 长度上下界（闭区间）。
	MinLength int `yaml:"min_length" json:"min_length"`
	MaxLength int `yaml:"max_length" json:"max_length"`
	// MaxDigitRatio: 数字占非空白字符的比例上限，超出即 digit_dominated。
	MaxDigitRatio float64 `yaml:"max_digit_ratio" json:"max_digit_ratio"`
	// MaxSymbolRatio: 非字母数字、非常用标点的符号占非空白字符的比例上限，超出即 symbol_heavy。
	MaxSymbolRatio float64 `yaml:"max_symbol_ratio" json:"max_symbol_ratio"`
	// CreditPhrases: 字幕署名类固定短语（大小写不敏感，内部空白宽松匹配）。
	CreditPhrases []string `yaml:"credit_phrases" json:"credit_phrases"`
}

// DefaultCreditPhrases 返回默认署名短语集合。
func DefaultCreditPhrases() []string {
	return []string{
		"subtitulado por",
		"subtitulada por",
		"subtítulos por",
		"subtitulos por",
		"subtítulos de",
		"subtitles by",
		"subtitled by",
		"sync by",
		"synced by",
		"sincronizado por",
		"sincronización por",
		"traducido por",
		"traducción por",
		"corregido por",
		"ripped by",
		"encoded by",
		"opensubtitles",
		"addic7ed",
		"tusubtitulo",
		"subdivx",
	}
}

// Defaults 返回默认阈值。
func Defaults() Options {
	return Options{
		MinLength:      15,
		MaxLength:      120,
		MaxDigitRatio:  0.5,
		MaxSymbolRatio: 0.25,
		CreditPhrases:  DefaultCreditPhrases(),
	}
}

// Validate 对阈值做静态校验；错误包裹 contract.ErrInvalidConfig。
func (o Options) Validate() error {
	if o.MinLength < 0 {
		return fmt.Errorf("%w: min_length must be >= 0", contract.ErrInvalidConfig)
	}
	if o.MaxLength < 1 {
		return fmt.Errorf("%w: max_length must be >= 1", contract.ErrInvalidConfig)
	}
	if o.MinLength > o.MaxLength {
		return fmt.Errorf("%w: min_length(%d) > max_length(%d)", contract.ErrInvalidConfig, o.MinLength, o.MaxLength)
	}
	if o.MaxDigitRatio <= 0 || o.MaxDigitRatio > 1 {
		return fmt.Errorf("%w: max_digit_ratio must be in (0,1]", contract.ErrInvalidConfig)
	}
	if o.MaxSymbolRatio <= 0 || o.MaxSymbolRatio > 1 {
		return fmt.Errorf("%w: max_symbol_ratio must be in (0,1]", contract.ErrInvalidConfig)
	}
	for _, p := range o.CreditPhrases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: credit_phrases cannot contain empty phrase", contract.ErrInvalidConfig)
		}
	}
	return nil
}
