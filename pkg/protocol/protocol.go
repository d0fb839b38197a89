// Package protocol implements the block-framed wire protocol spoken between
// shardkv clients and servers.
//
// Protocol Format:
//   - A message is a sequence of blocks followed by a blank line.
//   - Each block is its length in decimal ASCII, a newline, the raw bytes
//     and another newline: "<len>\n<bytes>\n".
//   - A request's first block is the verb; the remaining blocks are the
//     arguments, with integers rendered as base-10 text.
//   - A response's first block is a status (ok, not_found, error, fail,
//     client_error); the remaining blocks are the payload.
//
// Example:
//
//	data, err := protocol.Encode("set", "a", 1)
//	// data == "3\nset\n1\na\n1\n1\n\n"
//
//	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
//	if err != nil {
//		return err
//	}
//	value, found := resp.Text()
//
// Because every block carries its own length, payloads may contain any
// byte including newlines, and empty blocks are distinct from the
// terminating blank line.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
)

// MaxBlockSize bounds the length a peer may announce for a single block.
const MaxBlockSize = 64 << 20

// maxLengthDigits bounds the length line; anything longer is malformed.
const maxLengthDigits = 20

// Encode renders a request message for verb and args.
//
// Supported argument types are string, []byte, every integer width, bool
// (encoded as 1 or 0), float32/float64 and fmt.Stringer. A nil argument, a
// nil []byte or an unsupported type fails with a PreconditionError before
// any byte is produced.
func Encode(verb string, args ...interface{}) ([]byte, error) {
	if verb == "" {
		return nil, kverrors.Precondition("", "", "empty verb")
	}

	size := len(verb) + 8
	for _, arg := range args {
		if s, ok := arg.(string); ok {
			size += len(s) + 8
		} else if b, ok := arg.([]byte); ok {
			size += len(b) + 8
		} else {
			size += 24
		}
	}

	buf := make([]byte, 0, size+1)
	buf = appendBlockString(buf, verb)
	for i, arg := range args {
		var err error
		buf, err = appendArg(buf, arg)
		if err != nil {
			return nil, kverrors.Precondition(verb, "", "argument %d: %v", i, err)
		}
	}
	return append(buf, '\n'), nil
}

// WriteRequest encodes a request and writes it to w in a single call.
func WriteRequest(w io.Writer, verb string, args ...interface{}) error {
	data, err := Encode(verb, args...)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteResponse writes a response message with the given status and
// payload blocks. It is used by servers and by tests that fake them.
func WriteResponse(w io.Writer, status Status, blocks ...[]byte) error {
	buf := appendBlockString(nil, string(status))
	for _, b := range blocks {
		buf = appendBlock(buf, b)
	}
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one framed message and returns its blocks.
//
// I/O failures are returned as-is so callers can treat them as transport
// failures. Malformed framing is reported as a *errors.ProtocolError.
func ReadMessage(r *bufio.Reader) ([][]byte, error) {
	var blocks [][]byte
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return blocks, nil
		}

		size, err := parseLength(line)
		if err != nil {
			return nil, err
		}

		data := make([]byte, size+1)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if data[size] != '\n' {
			return nil, kverrors.Protocol("block of %d bytes not followed by newline", size)
		}
		blocks = append(blocks, data[:size])
	}
}

// ReadResponse reads one response message.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	blocks, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	return NewResponse(blocks)
}

// ReadRequest reads one request message and splits it into verb and
// argument blocks.
func ReadRequest(r *bufio.Reader) (string, [][]byte, error) {
	blocks, err := ReadMessage(r)
	if err != nil {
		return "", nil, err
	}
	if len(blocks) == 0 {
		return "", nil, kverrors.Protocol("empty request")
	}
	return string(blocks[0]), blocks[1:], nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, kverrors.Protocol("length line too long")
		}
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

func parseLength(line []byte) (int, error) {
	if len(line) > maxLengthDigits {
		return 0, kverrors.Protocol("length line too long: %d bytes", len(line))
	}
	size, err := strconv.Atoi(string(bytes.TrimSpace(line)))
	if err != nil {
		return 0, kverrors.Protocol("invalid block length %q", line)
	}
	if size < 0 {
		return 0, kverrors.Protocol("negative block length %d", size)
	}
	if size > MaxBlockSize {
		return 0, kverrors.Protocol("block length %d exceeds limit %d", size, MaxBlockSize)
	}
	return size, nil
}

func appendBlock(buf, data []byte) []byte {
	buf = strconv.AppendInt(buf, int64(len(data)), 10)
	buf = append(buf, '\n')
	buf = append(buf, data...)
	return append(buf, '\n')
}

func appendBlockString(buf []byte, s string) []byte {
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, '\n')
	buf = append(buf, s...)
	return append(buf, '\n')
}

func appendArg(buf []byte, arg interface{}) ([]byte, error) {
	switch v := arg.(type) {
	case string:
		return appendBlockString(buf, v), nil
	case []byte:
		if v == nil {
			return nil, errors.New("nil value")
		}
		return appendBlock(buf, v), nil
	}
	s, err := formatScalar(arg)
	if err != nil {
		return nil, err
	}
	return appendBlockString(buf, s), nil
}

// IsNil reports whether arg is nil or a nil pointer, slice, map, channel,
// func or interface. Such arguments have no wire form.
func IsNil(arg interface{}) bool {
	if arg == nil {
		return true
	}
	switch v := reflect.ValueOf(arg); v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func formatScalar(arg interface{}) (string, error) {
	if IsNil(arg) {
		return "", errors.New("nil value")
	}
	switch v := arg.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported argument type %T", arg)
	}
}

func formatFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize), nil
}

// ArgString renders a single argument as the text Encode would put on the
// wire. The dispatcher uses it to turn the first argument into a shard key.
func ArgString(arg interface{}) (string, error) {
	switch v := arg.(type) {
	case string:
		return v, nil
	case []byte:
		if v == nil {
			return "", errors.New("nil value")
		}
		return string(v), nil
	}
	return formatScalar(arg)
}
