// Package jsonl reads and writes line-delimited JSON: one JSON value per
// line, blank lines skipped. The commit log's action codec builds on this
// rather than re-implementing line scanning.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize allows individual JSON lines up to 64MB (a single Add action
// can carry a long stats string), mirroring the buffer size bump needed for
// large embedded content in line-delimited records.
const maxLineSize = 64 * 1024 * 1024

// Decode reads line-delimited JSON from r, calling fn for every non-blank
// line's raw bytes in order. fn receives the 1-based line number for error
// reporting.
func Decode(r io.Reader, fn func(lineNum int, raw []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNum, append([]byte(nil), line...)); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan line-delimited JSON: %w", err)
	}
	return nil
}

// DecodeInto is Decode specialised to unmarshal each line into a T and
// collect the results.
func DecodeInto[T any](r io.Reader) ([]T, error) {
	var out []T
	err := Decode(r, func(_ int, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Encoder writes one JSON value per line.
type Encoder struct {
	w   io.Writer
	enc *json.Encoder
}

// NewEncoder wraps w. json.Encoder already emits a trailing newline per
// Encode call, which is exactly the line-delimited shape this package wants.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, enc: json.NewEncoder(w)}
}

// Encode writes v as one line.
func (e *Encoder) Encode(v any) error {
	return e.enc.Encode(v)
}

// EncodeAll writes every value in values as its own line, in order.
func EncodeAll(w io.Writer, values []any) error {
	enc := NewEncoder(w)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode line: %w", err)
		}
	}
	return nil
}
