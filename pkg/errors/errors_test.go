package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerErrorMessage(t *testing.T) {
	err := &ServerError{Verb: "incr", Key: "counter", Status: "error", Message: "value is not an integer"}
	assert.Equal(t, `incr "counter": server replied error: value is not an integer`, err.Error())

	bare := &ServerError{Verb: "info", Status: "fail"}
	assert.Equal(t, "info: server replied fail", bare.Error())
}

func TestClusterUnavailableUnwrapsLastCause(t *testing.T) {
	last := &TransportError{Addr: "10.0.0.2:8888", Op: "read", Err: io.ErrUnexpectedEOF}
	err := fmt.Errorf("dispatch: %w", &ClusterUnavailableError{Cluster: "c1", Verb: "get", Key: "a", Tried: 2, Last: last})

	var cu *ClusterUnavailableError
	require.True(t, stderrors.As(err, &cu))
	assert.Equal(t, 2, cu.Tried)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPrecondition(t *testing.T) {
	err := Precondition("set", "k", "value must not be nil")
	assert.True(t, IsPrecondition(err))
	assert.False(t, IsTransport(err))
	assert.Equal(t, `set "k": value must not be nil`, err.Error())
	assert.Equal(t, "multi_set: odd number of arguments", Precondition("multi_set", "", "odd number of arguments").Error())
}
