package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

var (
	spanishLetterRe = regexp.MustCompile(`[A-Za-zÁÉÍÓÚÜÑáéíóúüñ]`)
	// H[H]:MM:SS 可带 ,mmm / .mmm 毫秒
	numericMarkerRe = regexp.MustCompile(`\b\d{1,2}:\d{2}:\d{2}(?:[,.]\d{1,3})?\b`)
	urlRe           = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
	emailRe         = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	htmlTagRe       = regexp.MustCompile(`<[^<>]+>`)
	bracketRe       = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	parenRe         = regexp.MustCompile(`\([^()]*\)`)
)

// line: 单行在规则间共享的只读视图。
type line struct {
	text  string // Canonical 形式
	runes int
}

// rule: 谓词 → 原因 的一对；表顺序即求值顺序。
type rule struct {
	reason contract.Reason
	match  func(c *Classifier, l *line) bool
}

// rules 为固定求值顺序：先廉价检查，首个命中即短路。
// 时间轴判定排在字母判定之前，使 "00:00:01,000 --> 00:00:03,000" 报告 timestamp。
var rules = []rule{
	{contract.ReasonTooShort, func(c *Classifier, l *line) bool { return l.runes < c.opts.MinLength || l.runes == 0 }},
	{contract.ReasonTooLong, func(c *Classifier, l *line) bool { return l.runes > c.opts.MaxLength }},
	{contract.ReasonTimestamp, func(_ *Classifier, l *line) bool { return strings.Contains(l.text, "-->") }},
	{contract.ReasonNumericMarker, func(_ *Classifier, l *line) bool { return numericMarkerRe.MatchString(l.text) }},
	{contract.ReasonNoSpanishLetters, func(_ *Classifier, l *line) bool { return !spanishLetterRe.MatchString(l.text) }},
	{contract.ReasonURL, func(_ *Classifier, l *line) bool { return urlRe.MatchString(l.text) }},
	{contract.ReasonEmail, func(_ *Classifier, l *line) bool { return emailRe.MatchString(l.text) }},
	{contract.ReasonCreditPhrase, func(c *Classifier, l *line) bool {
		return c.credit != nil && c.credit.MatchString(l.text)
	}},
	{contract.ReasonMarkup, func(_ *Classifier, l *line) bool { return hasMarkup(l) }},
	{contract.ReasonDigitDominated, func(c *Classifier, l *line) bool {
		digits, _, nonSpace := density(l.text)
		return exceeds(digits, nonSpace, c.opts.MaxDigitRatio)
	}},
	{contract.ReasonSymbolHeavy, func(c *Classifier, l *line) bool {
		_, symbols, nonSpace := density(l.text)
		return exceeds(symbols, nonSpace, c.opts.MaxSymbolRatio)
	}},
}

// RuleOrder 返回规则表的原因顺序（不含最后的 duplicate）。
func RuleOrder() []contract.Reason {
	out := make([]contract.Reason, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.reason)
	}
	return out
}

// hasMarkup: HTML 标签、任意 [...] / {...}，或 (...) 覆盖至少半行。
func hasMarkup(l *line) bool {
	if htmlTagRe.MatchString(l.text) || bracketRe.MatchString(l.text) {
		return true
	}
	covered := 0
	for _, m := range parenRe.FindAllString(l.text, -1) {
		covered += utf8.RuneCountInString(m)
	}
	return covered > 0 && covered*2 >= l.runes
}

// density 统计数字、符号与非空白 rune 数。
// 符号：非字母、非数字、非组合记号、非空白，且不属于常用西语标点。
func density(s string) (digits, symbols, nonSpace int) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r), unicode.IsMark(r):
		case isPunct(r):
		default:
			symbols++
		}
	}
	return digits, symbols, nonSpace
}

const allowedPunct = "¡¿?!.,:;'\"-–—()«»…‘’“”"

func isPunct(r rune) bool { return strings.ContainsRune(allowedPunct, r) }

func exceeds(n, total int, ratio float64) bool {
	if total == 0 {
		return false
	}
	return float64(n) > ratio*float64(total)
}

// compileCredit 将短语集合编译为单个大小写不敏感正则；短语内空白宽松匹配。
func compileCredit(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(norm.NFC.String(p))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}
