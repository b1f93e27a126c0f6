package contract

import (
	"errors"
	"path/filepath"
	"testing"
)

// TestNormalizePath 验证路径规范化逻辑。
func TestNormalizePath(t *testing.T) {
	wpath := filepath.Join("a", "b", "c")
	basicCases := map[string]string{
		wpath:      "a/b/c",
		"./x/../y": "y",
		"":         ".",
	}
	for in, want := range basicCases {
		if got := NormalizePath(in); got != want {
			t.Fatalf("基础测试 %s -> %s, 预期 %s", in, got, want)
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Windows路径", "C:\\corpus\\split\\es.txt", "C:/corpus/split/es.txt"},
		{"清理多余斜杠", "corpus//split///es.txt", "corpus/split/es.txt"},
		{"处理父目录", "corpus/tmp/../split/es.txt", "corpus/split/es.txt"},
		{"混合分隔符", "corpus\\split/es.txt", "corpus/split/es.txt"},
		{"根路径", "/", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.input); got != tt.expected {
				t.Errorf("NormalizePath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestShardIDFromPath 覆盖 ShardID 派生与非法路径。
func TestShardIDFromPath(t *testing.T) {
	ok := []struct {
		in   string
		want ShardID
	}{
		{"corpus/split/es.part-003.txt", "es.part-003"},
		{"es.txt", "es"},
		{"C:\\data\\shard-1.txt", "shard-1"},
		{"noext", "noext"},
		{".hidden", ".hidden"},
	}
	for _, tt := range ok {
		got, err := ShardIDFromPath(tt.in)
		if err != nil {
			t.Fatalf("%q: unexpected err %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %q want %q", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "  ", "/", "."} {
		if _, err := ShardIDFromPath(bad); !errors.Is(err, ErrPathInvalid) {
			t.Fatalf("%q: want ErrPathInvalid got %v", bad, err)
		}
	}
}

// TestReasonValid 枚举完整性：规则原因与 decode_error 均合法，空值与未知值非法。
func TestReasonValid(t *testing.T) {
	for _, r := range RuleReasons() {
		if !r.Valid() {
			t.Fatalf("rule reason %q should be valid", r)
		}
	}
	if !ReasonDecodeError.Valid() {
		t.Fatalf("decode_error should be valid")
	}
	if ReasonNone.Valid() || Reason("metadata").Valid() {
		t.Fatalf("empty/unknown reason must be invalid")
	}
	if len(RuleReasons()) != 12 {
		t.Fatalf("expect 12 rule reasons, got %d", len(RuleReasons()))
	}
}

// TestDecisionHelpers 验证 Keep/Drop 构造。
func TestDecisionHelpers(t *testing.T) {
	k := Keep("hola amigos", DedupKey{1})
	if !k.IsKept() || k.Reason != ReasonNone || k.Text != "hola amigos" {
		t.Fatalf("keep decision malformed: %+v", k)
	}
	d := Drop(ReasonURL)
	if d.IsKept() || d.Reason != ReasonURL || d.Text != "" {
		t.Fatalf("drop decision malformed: %+v", d)
	}
}

// TestDedupKeyHex hex 往返与非法输入。
func TestDedupKeyHex(t *testing.T) {
	k := DedupKey{0xde, 0xad, 0xbe, 0xef}
	got, err := ParseDedupKey(k.String())
	if err != nil || got != k {
		t.Fatalf("roundtrip failed: %v %x", err, got)
	}
	for _, bad := range []string{"", "abc", "zz" + k.String()[2:]} {
		if _, err := ParseDedupKey(bad); err == nil {
			t.Fatalf("%q: expect error", bad)
		}
	}
}
