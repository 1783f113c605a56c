package httpmsg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/httpmsg"
)

func TestNewRequest_HasEmptyHeaderMap(t *testing.T) {
	r := httpmsg.NewRequest()
	_, ok := r.Header("host")
	require.False(t, ok)
}

func TestRequest_HeaderLookup(t *testing.T) {
	r := httpmsg.NewRequest()
	r.Headers["content-type"] = "text/plain"

	v, ok := r.Header("content-type")
	require.True(t, ok)
	require.Equal(t, "text/plain", v)
}

func TestRequest_EqualComparesAllFields(t *testing.T) {
	a := httpmsg.NewRequest()
	a.Method = "GET"
	a.Path = "/x"
	a.Headers["host"] = "example.com"

	b := httpmsg.NewRequest()
	b.Method = "GET"
	b.Path = "/x"
	b.Headers["host"] = "example.com"

	require.True(t, a.Equal(b))

	b.Method = "POST"
	require.False(t, a.Equal(b))
}

func TestRequest_EqualNilHandling(t *testing.T) {
	var a, b *httpmsg.Request
	require.True(t, a.Equal(b))

	a = httpmsg.NewRequest()
	require.False(t, a.Equal(nil))
}

func TestNewStatusError(t *testing.T) {
	e := httpmsg.NewStatusError(400, "Bad Request", true)
	require.Equal(t, 400, e.Status)
	require.Equal(t, "Bad Request", e.Error())
	require.True(t, e.ForceClose)
}
