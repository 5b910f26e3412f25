package networking

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailable(t *testing.T) {
	t.Parallel()

	port := FindAvailable()
	require.NotZero(t, port)
	assert.True(t, IsAvailable(port))
}

func TestFindOrUsePort(t *testing.T) {
	t.Parallel()

	t.Run("zero requests an ephemeral port", func(t *testing.T) {
		t.Parallel()
		port, err := FindOrUsePort(0)
		require.NoError(t, err)
		assert.NotZero(t, port)
	})

	t.Run("free port is used as requested", func(t *testing.T) {
		t.Parallel()
		free := FindAvailable()
		require.NotZero(t, free)

		port, err := FindOrUsePort(free)
		require.NoError(t, err)
		assert.Equal(t, free, port)
	})

	t.Run("busy port falls back to an alternative", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()
		busy := listener.Addr().(*net.TCPAddr).Port

		port, err := FindOrUsePort(busy)
		require.NoError(t, err)
		assert.NotEqual(t, busy, port)
	})
}

func TestIsAvailable(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	assert.False(t, IsAvailable(port), fmt.Sprintf("port %d is bound and should not be available", port))
}
