package protocol

import (
	"strconv"
	"strings"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
)

// Status is the first block of every response.
type Status string

// Response statuses. The set is closed; any other value is a protocol error.
const (
	StatusOK          Status = "ok"
	StatusNotFound    Status = "not_found"
	StatusError       Status = "error"
	StatusFail        Status = "fail"
	StatusClientError Status = "client_error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusNotFound, StatusError, StatusFail, StatusClientError:
		return true
	}
	return false
}

// Failed reports whether s is a status that carries an error message.
func (s Status) Failed() bool {
	return s == StatusError || s == StatusFail || s == StatusClientError
}

// KeyValue is a key and its value decoded from two adjacent blocks.
type KeyValue struct {
	Key   string
	Value string
}

// IDScore is a sorted-set member and its score decoded from two adjacent blocks.
type IDScore struct {
	ID    string
	Score int64
}

// Response is one decoded reply: a status and the raw payload blocks.
//
// Accessors treat a not_found status as an absent value: single-value
// accessors report found == false, list accessors return nil. None of them
// ever turn not_found into an error.
type Response struct {
	Status Status
	Blocks [][]byte
}

// NewResponse builds a Response from the blocks of a message. The first
// block must be a known status.
func NewResponse(blocks [][]byte) (*Response, error) {
	if len(blocks) == 0 {
		return nil, kverrors.Protocol("empty response")
	}
	status := Status(blocks[0])
	if !status.Valid() {
		return nil, kverrors.Protocol("unknown response status %q", blocks[0])
	}
	return &Response{Status: status, Blocks: blocks[1:]}, nil
}

// OK reports whether the status is ok.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// NotFound reports whether the status is not_found.
func (r *Response) NotFound() bool {
	return r.Status == StatusNotFound
}

// Err converts an error, fail or client_error status into a ServerError
// carrying the server's message verbatim. It returns nil for ok and not_found.
func (r *Response) Err(verb, key string) error {
	if !r.Status.Failed() {
		return nil
	}
	return &kverrors.ServerError{
		Verb:    verb,
		Key:     key,
		Status:  string(r.Status),
		Message: r.Join(" "),
	}
}

func (r *Response) present() bool {
	return r.Status == StatusOK && len(r.Blocks) > 0
}

// Text returns the first payload block as a string.
func (r *Response) Text() (string, bool) {
	if !r.present() {
		return "", false
	}
	return string(r.Blocks[0]), true
}

// Bytes returns the first payload block as raw bytes.
func (r *Response) Bytes() ([]byte, bool) {
	if !r.present() {
		return nil, false
	}
	return r.Blocks[0], true
}

// Join concatenates every payload block with sep.
func (r *Response) Join(sep string) string {
	if r.Status == StatusNotFound {
		return ""
	}
	parts := make([]string, len(r.Blocks))
	for i, b := range r.Blocks {
		parts[i] = string(b)
	}
	return strings.Join(parts, sep)
}

// Int32 parses the first payload block as a 32-bit integer.
func (r *Response) Int32() (int32, bool, error) {
	v, ok, err := r.parseInt(32)
	return int32(v), ok, err
}

// Int64 parses the first payload block as a 64-bit integer.
func (r *Response) Int64() (int64, bool, error) {
	return r.parseInt(64)
}

func (r *Response) parseInt(bitSize int) (int64, bool, error) {
	if err := r.Err("", ""); err != nil {
		return 0, false, err
	}
	if !r.present() {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(string(r.Blocks[0]), 10, bitSize)
	if err != nil {
		return 0, false, kverrors.Protocol("expected %d-bit integer, got %q", bitSize, r.Blocks[0])
	}
	return v, true, nil
}

// Strings returns every payload block as a string.
func (r *Response) Strings() []string {
	if r.Status != StatusOK || len(r.Blocks) == 0 {
		return nil
	}
	out := make([]string, len(r.Blocks))
	for i, b := range r.Blocks {
		out[i] = string(b)
	}
	return out
}

// KeyValues pairs up payload blocks two at a time.
func (r *Response) KeyValues() ([]KeyValue, error) {
	if err := r.pairable(); err != nil || !r.present() {
		return nil, err
	}
	out := make([]KeyValue, 0, len(r.Blocks)/2)
	for i := 0; i < len(r.Blocks); i += 2 {
		out = append(out, KeyValue{Key: string(r.Blocks[i]), Value: string(r.Blocks[i+1])})
	}
	return out, nil
}

// IDScores pairs up payload blocks two at a time, parsing the second of
// each pair as an integer score.
func (r *Response) IDScores() ([]IDScore, error) {
	if err := r.pairable(); err != nil || !r.present() {
		return nil, err
	}
	out := make([]IDScore, 0, len(r.Blocks)/2)
	for i := 0; i < len(r.Blocks); i += 2 {
		score, err := strconv.ParseInt(string(r.Blocks[i+1]), 10, 64)
		if err != nil {
			return nil, kverrors.Protocol("score of %q is not an integer: %q", r.Blocks[i], r.Blocks[i+1])
		}
		out = append(out, IDScore{ID: string(r.Blocks[i]), Score: score})
	}
	return out, nil
}

// Map collapses key/value pairs into a map; later duplicates win.
func (r *Response) Map() (map[string]string, error) {
	pairs, err := r.KeyValues()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		out[kv.Key] = kv.Value
	}
	return out, nil
}

func (r *Response) pairable() error {
	if err := r.Err("", ""); err != nil {
		return err
	}
	if r.Status == StatusOK && len(r.Blocks)%2 != 0 {
		return kverrors.Protocol("expected an even number of blocks, got %d", len(r.Blocks))
	}
	return nil
}
