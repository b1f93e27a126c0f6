package classify

import (
	"crypto/sha256"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Canonical 返回一行的规范形式，所有规则（长度、字母判定、去重键）共用这一形式：
//  1. 去掉 BOM、零宽/双向控制符与 C0 控制符（制表符视为空格）；
//  2. Unicode NFC；
//  3. 去掉首尾空白。
//
// 长度以规范形式的 rune 数计。
func Canonical(raw string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 0x20, r == 0x7f:
			return -1
		case r == '\ufeff', r == '\u2060':
			return -1
		case r >= '\u200b' && r <= '\u200f':
			return -1
		case r >= '\u202a' && r <= '\u202e':
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(norm.NFC.String(s))
}

// dedupForm: 规范形式上折叠空白并做 Unicode 大小写折叠。
// 输入必须已是 Canonical 的结果。
func dedupForm(canon string, fold cases.Caser) string {
	return fold.String(strings.Join(strings.Fields(canon), " "))
}

// keyOf 计算去重键：sha256 前 16 字节。
func keyOf(form string) contract.DedupKey {
	sum := sha256.Sum256([]byte(form))
	var k contract.DedupKey
	copy(k[:], sum[:len(k)])
	return k
}

// DedupKey 计算原始行的去重键（Canonical → 折叠 → 摘要）。
func DedupKey(raw string) contract.DedupKey {
	return keyOf(dedupForm(Canonical(raw), cases.Fold()))
}
