package contract

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ShardID: 分片标识（通常取分片文件基名去扩展名，见 ShardIDFromPath）。
type ShardID string

// LineNumber: 分片内行号，自 1 起严格递增。
type LineNumber int64

// LineRecord: 原子输入行（读入即不可变）。
// 约束：
// - ShardID 在同一 Worker 生命周期内一致；
// - LineNumber 自 1 起单调递增；
// - Raw 为去掉行尾 \n（及紧邻的 \r）后的原始字节。
type LineRecord struct {
	ShardID    ShardID
	LineNumber LineNumber
	Raw        []byte
}

// Outcome: 行判定结果。
type Outcome string

const (
	Kept    Outcome = "kept"
	Dropped Outcome = "dropped"
)

// Reason: 丢弃原因（kept 时为空）。
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTooShort         Reason = "too_short"
	ReasonTooLong          Reason = "too_long"
	ReasonNoSpanishLetters Reason = "no_spanish_letters"
	ReasonTimestamp        Reason = "timestamp"
	ReasonNumericMarker    Reason = "numeric_marker"
	ReasonURL              Reason = "url"
	ReasonEmail            Reason = "email"
	ReasonCreditPhrase     Reason = "credit_phrase"
	ReasonMarkup           Reason = "markup"
	ReasonDigitDominated   Reason = "digit_dominated"
	ReasonSymbolHeavy      Reason = "symbol_heavy"
	ReasonDuplicate        Reason = "duplicate"
	// ReasonDecodeError 不属于分类规则：行无法按 UTF-8 解码时由 Worker 直接记录。
	ReasonDecodeError Reason = "decode_error"
)

// RuleReasons 返回分类规则可能产生的全部原因（按规则顺序，不含 decode_error）。
func RuleReasons() []Reason {
	return []Reason{
		ReasonTooShort, ReasonTooLong,
		ReasonTimestamp, ReasonNumericMarker,
		ReasonNoSpanishLetters,
		ReasonURL, ReasonEmail,
		ReasonCreditPhrase,
		ReasonMarkup,
		ReasonDigitDominated, ReasonSymbolHeavy,
		ReasonDuplicate,
	}
}

// Valid 判断原因是否为已知枚举值（含 decode_error）。
func (r Reason) Valid() bool {
	if r == ReasonDecodeError {
		return true
	}
	for _, x := range RuleReasons() {
		if r == x {
			return true
		}
	}
	return false
}

// DedupKey: 去重规范化文本的 128 位摘要。
type DedupKey [16]byte

// String 返回小写 hex 形式（元数据中的 key 字段）。
func (k DedupKey) String() string { return hex.EncodeToString(k[:]) }

// ParseDedupKey 解析 32 位 hex 形式的去重键。
func ParseDedupKey(s string) (DedupKey, error) {
	var k DedupKey
	if len(s) != hex.EncodedLen(len(k)) {
		return k, fmt.Errorf("dedup key: want %d hex chars, got %d", hex.EncodedLen(len(k)), len(s))
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, fmt.Errorf("dedup key: %w", err)
	}
	return k, nil
}

// Decision: 单行判定。
// 约束：Outcome=dropped 时 Reason 恰为一个非空值；kept 时 Reason 为空，Text/Key 有效。
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Text: 规范化后的行文本（仅 kept 时写入 clean 输出）。
	Text string
	// Key: 去重键（仅 kept 时有效，用于元数据回放重建 Seen-Set）。
	Key DedupKey
}

// Keep/Drop 为便捷构造。
func Keep(text string, key DedupKey) Decision {
	return Decision{Outcome: Kept, Text: text, Key: key}
}

func Drop(r Reason) Decision { return Decision{Outcome: Dropped, Reason: r} }

// IsKept 报告是否保留。
func (d Decision) IsKept() bool { return d.Outcome == Kept }

// MetaRecord: 元数据流的一行（每个输入行恰好一条）。
type MetaRecord struct {
	ShardID    ShardID    `json:"shard_id"`
	LineNumber LineNumber `json:"line_number"`
	Outcome    Outcome    `json:"outcome"`
	Reason     Reason     `json:"reason"`
	// Key: kept 行的去重键（hex）；dropped 行省略。
	Key string `json:"key,omitempty"`
}

// Checkpoint: 分片进度的持久化记录（原子覆盖写）。
// 不变量：
// - LastProcessedLineNumber 单调不减；
// - LastProcessedLineNumber == LinesKept + LinesDropped；
// - TextBytes/MetaBytes 为该检查点时刻两个输出工件已落盘的字节长度。
type Checkpoint struct {
	ShardID                 ShardID    `json:"shard_id"`
	LastProcessedLineNumber LineNumber `json:"last_processed_line_number"`
	LinesKept               int64      `json:"lines_kept"`
	LinesDropped            int64      `json:"lines_dropped"`
	TextBytes               int64      `json:"text_bytes"`
	MetaBytes               int64      `json:"meta_bytes"`
	UpdatedAt               time.Time  `json:"updated_at"`
}
