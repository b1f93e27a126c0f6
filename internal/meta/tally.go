package meta

import (
	"sort"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Tally: 判定计数。decode_error 单列，不混入规则原因。
type Tally struct {
	Total        int64
	Kept         int64
	DecodeErrors int64
	Dropped      map[contract.Reason]int64
}

// NewTally 返回空计数。
func NewTally() *Tally {
	return &Tally{Dropped: make(map[contract.Reason]int64)}
}

// Add 计入一行。
func (t *Tally) Add(o contract.Outcome, r contract.Reason) {
	t.Total++
	switch {
	case o == contract.Kept:
		t.Kept++
	case r == contract.ReasonDecodeError:
		t.DecodeErrors++
	default:
		t.Dropped[r]++
	}
}

// AddRecord 计入一条元数据记录。
func (t *Tally) AddRecord(rec contract.MetaRecord) { t.Add(rec.Outcome, rec.Reason) }

// DroppedTotal 为全部丢弃行（含 decode_error）。
func (t *Tally) DroppedTotal() int64 {
	n := t.DecodeErrors
	for _, c := range t.Dropped {
		n += c
	}
	return n
}

// Merge 累加另一份计数。
func (t *Tally) Merge(o *Tally) {
	t.Total += o.Total
	t.Kept += o.Kept
	t.DecodeErrors += o.DecodeErrors
	for r, c := range o.Dropped {
		t.Dropped[r] += c
	}
}

// ReasonCount: 单个原因的计数。
type ReasonCount struct {
	Reason contract.Reason `json:"reason"`
	Count  int64           `json:"count"`
}

// Breakdown 按规则顺序列出非零的丢弃原因；未知原因按字典序附在末尾。
func (t *Tally) Breakdown() []ReasonCount {
	out := make([]ReasonCount, 0, len(t.Dropped))
	known := make(map[contract.Reason]bool)
	for _, r := range contract.RuleReasons() {
		known[r] = true
		if c := t.Dropped[r]; c > 0 {
			out = append(out, ReasonCount{Reason: r, Count: c})
		}
	}
	var rest []contract.Reason
	for r, c := range t.Dropped {
		if !known[r] && c > 0 {
			rest = append(rest, r)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, r := range rest {
		out = append(out, ReasonCount{Reason: r, Count: t.Dropped[r]})
	}
	return out
}
