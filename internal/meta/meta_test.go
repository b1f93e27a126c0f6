package meta

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

const key1 = "00112233445566778899aabbccddeeff"

func TestEncodeScan(t *testing.T) {
	recs := []contract.MetaRecord{
		{ShardID: "es-001", LineNumber: 1, Outcome: contract.Dropped, Reason: contract.ReasonTimestamp},
		{ShardID: "es-001", LineNumber: 2, Outcome: contract.Kept, Key: key1},
		{ShardID: "es-001", LineNumber: 3, Outcome: contract.Dropped, Reason: contract.ReasonDecodeError},
	}
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	total := 0
	for _, r := range recs {
		n, err := enc.Encode(r)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, buf.Len(), total)
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `{"shard_id":"es-001","line_number":1,"outcome":"dropped","reason":"timestamp"}`+"\n")
	assert.Contains(t, buf.String(), `"reason":"","key":"`+key1+`"`)

	var got []contract.MetaRecord
	require.NoError(t, Scan(&buf, func(r contract.MetaRecord) error {
		got = append(got, r)
		return nil
	}))
	assert.Equal(t, recs, got)
}

func TestEncodeNoHTMLEscape(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncoder(&buf).Encode(contract.MetaRecord{ShardID: "a<b>&c", LineNumber: 1, Outcome: contract.Dropped, Reason: contract.ReasonMarkup})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"a<b>&c"`)
}

func TestEncodeRejectsMalformed(t *testing.T) {
	bad := []contract.MetaRecord{
		{LineNumber: 1, Outcome: contract.Kept, Key: key1},
		{ShardID: "s", LineNumber: 0, Outcome: contract.Kept, Key: key1},
		{ShardID: "s", LineNumber: 1, Outcome: contract.Kept, Reason: contract.ReasonURL, Key: key1},
		{ShardID: "s", LineNumber: 1, Outcome: contract.Kept},
		{ShardID: "s", LineNumber: 1, Outcome: contract.Dropped},
		{ShardID: "s", LineNumber: 1, Outcome: contract.Dropped, Reason: "bogus"},
		{ShardID: "s", LineNumber: 1, Outcome: contract.Dropped, Reason: contract.ReasonURL, Key: key1},
		{ShardID: "s", LineNumber: 1, Outcome: "maybe"},
	}
	for i, r := range bad {
		var buf bytes.Buffer
		_, err := NewEncoder(&buf).Encode(r)
		assert.ErrorIs(t, err, contract.ErrInvariantViolation, "case %d", i)
		assert.Zero(t, buf.Len(), "case %d", i)
	}
}

func TestScanErrors(t *testing.T) {
	ok := `{"shard_id":"s","line_number":1,"outcome":"dropped","reason":"url"}` + "\n"
	cases := map[string]string{
		"truncated":     ok + `{"shard_id":"s","line_nu`,
		"unknown field": `{"shard_id":"s","line_number":1,"outcome":"dropped","reason":"url","x":1}` + "\n",
		"empty line":    ok + "\n",
		"not json":      "hello\n",
		"bad reason":    `{"shard_id":"s","line_number":1,"outcome":"dropped","reason":"nope"}` + "\n",
		"trailing":      `{"shard_id":"s","line_number":1,"outcome":"dropped","reason":"url"} {}` + "\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			err := Scan(strings.NewReader(in), func(contract.MetaRecord) error { return nil })
			assert.ErrorIs(t, err, contract.ErrArtifactMismatch)
		})
	}
}

func TestScanCallbackErrorPassThrough(t *testing.T) {
	stop := errors.New("stop")
	in := `{"shard_id":"s","line_number":1,"outcome":"dropped","reason":"url"}` + "\n"
	err := Scan(strings.NewReader(in), func(contract.MetaRecord) error { return stop })
	assert.Same(t, stop, err)
}

func TestScanEmpty(t *testing.T) {
	called := false
	require.NoError(t, Scan(strings.NewReader(""), func(contract.MetaRecord) error { called = true; return nil }))
	assert.False(t, called)
}

func TestTally(t *testing.T) {
	a := NewTally()
	a.Add(contract.Kept, contract.ReasonNone)
	a.Add(contract.Dropped, contract.ReasonURL)
	a.Add(contract.Dropped, contract.ReasonTooShort)
	a.Add(contract.Dropped, contract.ReasonTooShort)
	a.Add(contract.Dropped, contract.ReasonDecodeError)

	assert.EqualValues(t, 5, a.Total)
	assert.EqualValues(t, 1, a.Kept)
	assert.EqualValues(t, 1, a.DecodeErrors)
	assert.EqualValues(t, 4, a.DroppedTotal())
	assert.Equal(t, []ReasonCount{
		{Reason: contract.ReasonTooShort, Count: 2},
		{Reason: contract.ReasonURL, Count: 1},
	}, a.Breakdown())

	b := NewTally()
	b.AddRecord(contract.MetaRecord{Outcome: contract.Dropped, Reason: contract.ReasonURL})
	a.Merge(b)
	assert.EqualValues(t, 6, a.Total)
	assert.EqualValues(t, 2, a.Dropped[contract.ReasonURL])
	assert.Equal(t, a.Total, a.Kept+a.DroppedTotal())
}
