package jsonl_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/jsonl"
)

type record struct {
	Name string `json:"name"`
}

func TestDecodeIntoSkipsBlankLines(t *testing.T) {
	input := "{\"name\":\"a\"}\n\n{\"name\":\"b\"}\n"
	records, err := jsonl.DecodeInto[record](strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []record{{Name: "a"}, {Name: "b"}}, records)
}

func TestDecodeIntoReportsLineNumberOnError(t *testing.T) {
	input := "{\"name\":\"a\"}\nnot-json\n"
	_, err := jsonl.DecodeInto[record](strings.NewReader(input))
	require.ErrorContains(t, err, "line 2")
}

func TestEncodeAllRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jsonl.EncodeAll(&buf, []any{record{Name: "a"}, record{Name: "b"}}))

	records, err := jsonl.DecodeInto[record](&buf)
	require.NoError(t, err)
	require.Equal(t, []record{{Name: "a"}, {Name: "b"}}, records)
}
