package meta

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Encoder: 元数据 JSONL 写入器，每条记录一行，关闭 HTML 转义。
// 不做缓冲；调用方负责包一层 bufio 并在批边界 Flush。
type Encoder struct {
	w   io.Writer
	buf bytes.Buffer
	enc *json.Encoder
}

// NewEncoder 创建写入 w 的编码器。
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

// Encode 写入一条记录并返回写入字节数（含行尾 \n）。
func (e *Encoder) Encode(rec contract.MetaRecord) (int, error) {
	if err := Validate(rec); err != nil {
		return 0, err
	}
	e.buf.Reset()
	if err := e.enc.Encode(rec); err != nil {
		return 0, fmt.Errorf("meta encode: %w", err)
	}
	return e.w.Write(e.buf.Bytes())
}

// Validate 检查单条记录的形状：
// kept 无原因且携带合法 key；dropped 恰有一个已知原因且不带 key。
func Validate(rec contract.MetaRecord) error {
	if rec.ShardID == "" {
		return fmt.Errorf("%w: meta record without shard_id", contract.ErrInvariantViolation)
	}
	if rec.LineNumber < 1 {
		return fmt.Errorf("%w: meta line_number %d < 1", contract.ErrInvariantViolation, rec.LineNumber)
	}
	switch rec.Outcome {
	case contract.Kept:
		if rec.Reason != contract.ReasonNone {
			return fmt.Errorf("%w: kept line %d with reason %q", contract.ErrInvariantViolation, rec.LineNumber, rec.Reason)
		}
		if _, err := contract.ParseDedupKey(rec.Key); err != nil {
			return fmt.Errorf("%w: kept line %d: %v", contract.ErrInvariantViolation, rec.LineNumber, err)
		}
	case contract.Dropped:
		if !rec.Reason.Valid() {
			return fmt.Errorf("%w: dropped line %d with reason %q", contract.ErrInvariantViolation, rec.LineNumber, rec.Reason)
		}
		if rec.Key != "" {
			return fmt.Errorf("%w: dropped line %d carries key", contract.ErrInvariantViolation, rec.LineNumber)
		}
	default:
		return fmt.Errorf("%w: unknown outcome %q at line %d", contract.ErrInvariantViolation, rec.Outcome, rec.LineNumber)
	}
	return nil
}

// Scan 逐行解码 r 中的元数据记录并回调 fn。
// 拒绝未知字段、空行与缺少行尾 \n 的截断记录；格式错误包裹 contract.ErrArtifactMismatch。
// fn 返回的错误原样透传。
func Scan(r io.Reader, fn func(contract.MetaRecord) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for n := 1; ; n++ {
		b, err := br.ReadBytes('\n')
		if len(b) == 0 && errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("meta read: %w", err)
		}
		if err != nil { // EOF 且有残留：最后一条未写完整
			return fmt.Errorf("%w: meta record %d truncated", contract.ErrArtifactMismatch, n)
		}
		rec, derr := decode(b)
		if derr != nil {
			return fmt.Errorf("%w: meta record %d: %v", contract.ErrArtifactMismatch, n, derr)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func decode(b []byte) (contract.MetaRecord, error) {
	var rec contract.MetaRecord
	b = bytes.TrimRight(b, "\r\n")
	if len(b) == 0 {
		return rec, errors.New("empty line")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return rec, err
	}
	if dec.More() {
		return rec, errors.New("trailing data")
	}
	if err := Validate(rec); err != nil {
		return rec, err
	}
	return rec, nil
}
