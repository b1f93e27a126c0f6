package classify

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Classifier: 单行判定引擎。
// 约束：
//  1. 规则按固定顺序求值，首个命中即短路，每行恰得一个原因；
//  2. 除 Seen-Set 外无状态：相同输入与相同 Seen-Set 状态总得到相同 Decision；
//  3. 规范化（Canonical）只做一次，长度、字母判定与去重键共用同一形式；
//  4. 不可并发使用（内部持有 cases.Caser）；每个 Worker 持有自己的实例。
type Classifier struct {
	opts   Options
	credit *regexp.Regexp
	fold   cases.Caser
}

// New 校验阈值并构造 Classifier。
func New(opts Options) (*Classifier, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		opts:   opts,
		credit: compileCredit(opts.CreditPhrases),
		fold:   cases.Fold(),
	}, nil
}

// Options 返回构造时的阈值副本。
func (c *Classifier) Options() Options { return c.opts }

// Classify 判定一行。seen 为 nil 时跳过去重（仅用于无状态探测）。
// 通过所有规则且未见过的行会被写入 seen。
func (c *Classifier) Classify(raw string, seen *SeenSet) contract.Decision {
	text := Canonical(raw)
	l := &line{text: text, runes: utf8.RuneCountInString(text)}
	for _, r := range rules {
		if r.match(c, l) {
			return contract.Drop(r.reason)
		}
	}
	key := keyOf(dedupForm(text, c.fold))
	if seen != nil && !seen.Add(key) {
		return contract.Drop(contract.ReasonDuplicate)
	}
	return contract.Keep(text, key)
}
