package netutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/netutil"
)

func TestNormalizeListenSpec_BarePort(t *testing.T) {
	key, err := netutil.NormalizeListenSpec("8080")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", key)
}

func TestNormalizeListenSpec_ColonPort(t *testing.T) {
	key, err := netutil.NormalizeListenSpec(":8080")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", key)
}

func TestNormalizeListenSpec_WildcardHost(t *testing.T) {
	key, err := netutil.NormalizeListenSpec("*:8080")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", key)
}

func TestNormalizeListenSpec_ExplicitHost(t *testing.T) {
	key, err := netutil.NormalizeListenSpec("127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", key)
}

func TestNormalizeListenSpec_DifferentAliasesShareKey(t *testing.T) {
	a, err := netutil.NormalizeListenSpec("8080")
	require.NoError(t, err)
	b, err := netutil.NormalizeListenSpec("*:8080")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestNormalizeListenSpec_RejectsInvalidPort(t *testing.T) {
	_, err := netutil.NormalizeListenSpec(":99999")
	require.Error(t, err)

	_, err = netutil.NormalizeListenSpec("not-a-port")
	require.Error(t, err)
}

func TestNormalizeListenSpec_RejectsEmpty(t *testing.T) {
	_, err := netutil.NormalizeListenSpec("")
	require.Error(t, err)
}
