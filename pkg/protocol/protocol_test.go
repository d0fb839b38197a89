package protocol

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestEncodeSet(t *testing.T) {
	data, err := Encode("set", "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "3\nset\n1\na\n1\n1\n\n", string(data))
}

func TestEncodeArgumentKinds(t *testing.T) {
	data, err := Encode("zset", "board", []byte("id\nwith newline"), int64(-42), uint8(7), true, 1.5)
	require.NoError(t, err)

	verb, args, err := ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, "zset", verb)

	got := make([]string, len(args))
	for i, a := range args {
		got[i] = string(a)
	}
	assert.Equal(t, []string{"board", "id\nwith newline", "-42", "7", "1", "1.5"}, got)
}

func TestEncodeRejectsNil(t *testing.T) {
	tests := []struct {
		name string
		args []interface{}
	}{
		{name: "untyped nil", args: []interface{}{"k", nil}},
		{name: "nil bytes", args: []interface{}{"k", []byte(nil)}},
		{name: "typed nil stringer", args: []interface{}{"k", (*tag)(nil)}},
		{name: "typed nil pointer", args: []interface{}{"k", (*int)(nil)}},
		{name: "unsupported type", args: []interface{}{"k", struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteRequest(&buf, "set", tt.args...)
			require.Error(t, err)
			assert.True(t, kverrors.IsPrecondition(err))
			assert.Zero(t, buf.Len(), "nothing may be written when encoding fails")
		})
	}
}

type tag struct{ name string }

func (t *tag) String() string { return t.name }

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil([]byte(nil)))
	assert.True(t, IsNil((*tag)(nil)))
	assert.True(t, IsNil(map[string]int(nil)))
	assert.True(t, IsNil((func())(nil)))

	assert.False(t, IsNil([]byte{}))
	assert.False(t, IsNil(""))
	assert.False(t, IsNil(0))
	assert.False(t, IsNil(&tag{name: "x"}))
}

func TestEncodeStringer(t *testing.T) {
	data, err := Encode("set", "k", &tag{name: "v"})
	require.NoError(t, err)
	assert.Equal(t, "3\nset\n1\nk\n1\nv\n\n", string(data))
}

func TestRoundTripIsLossless(t *testing.T) {
	tests := [][]interface{}{
		{},
		{""},
		{"", "", ""},
		{"key", "value"},
		{"multi", []byte{0, 1, 2, '\n', '\n', 255}, 12345678901, -1},
		{strings.Repeat("x", 70000)},
	}

	for _, args := range tests {
		data, err := Encode("verb", args...)
		require.NoError(t, err)

		blocks, err := ReadMessage(bufio.NewReader(bytes.NewReader(data)))
		require.NoError(t, err)
		require.Len(t, blocks, len(args)+1)
		assert.Equal(t, "verb", string(blocks[0]))

		for i, arg := range args {
			want, err := ArgString(arg)
			require.NoError(t, err)
			assert.Equal(t, want, string(blocks[i+1]))
		}
	}
}

func TestReadMessagesBackToBack(t *testing.T) {
	r := reader("2\nok\n1\n1\n\n9\nnot_found\n\n")

	first, err := ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, first.Status)

	second, err := ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, second.Status)

	_, err = ReadResponse(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadOKWithoutPayload(t *testing.T) {
	resp, err := ReadResponse(reader("2\nok\n\n"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Blocks)
}

// A zero-length block is an empty payload value, not the terminator; the
// message still ends with a bare newline.
func TestZeroLengthBlockIsEmptyValue(t *testing.T) {
	resp, err := ReadResponse(reader("2\nok\n0\n\n\n"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Blocks, 1)
	assert.Empty(t, resp.Blocks[0])

	_, err = ReadResponse(reader("2\nok\n0\n\n"))
	assert.ErrorIs(t, err, io.EOF)

	data, err := Encode("set", "k", "")
	require.NoError(t, err)
	assert.Equal(t, "3\nset\n1\nk\n0\n\n\n", string(data))
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "non numeric length", input: "abc\nok\n\n"},
		{name: "negative length", input: "-1\nok\n\n"},
		{name: "missing newline after payload", input: "2\nokX\n"},
		{name: "oversized block", input: "99999999999\n"},
		{name: "unknown status", input: "5\nmaybe\n\n"},
		{name: "empty response", input: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadResponse(reader(tt.input))
			require.Error(t, err)
			var pe *kverrors.ProtocolError
			assert.True(t, stderrors.As(err, &pe), "got %T: %v", err, err)
		})
	}
}

func TestReadTruncatedIsIOError(t *testing.T) {
	_, err := ReadResponse(reader("2\nok\n5\nab"))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var pe *kverrors.ProtocolError
	assert.False(t, stderrors.As(err, &pe))
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, StatusOK, []byte("a"), []byte("")))
	assert.Equal(t, "2\nok\n1\na\n0\n\n\n", buf.String())
}
