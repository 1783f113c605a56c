package respond_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/respond"
)

func TestNew_SetsStandardFields(t *testing.T) {
	r := respond.New(200, "text/plain", []byte("hi"), true)
	require.Equal(t, 200, r.Status)
	require.Equal(t, "OK", r.Reason)
	require.Equal(t, "text/plain", r.Headers["Content-Type"])
	require.True(t, r.KeepAlive)
}

func TestReasonFor_UnknownStatus(t *testing.T) {
	require.Equal(t, "Unknown", respond.ReasonFor(999))
	require.Equal(t, "Not Found", respond.ReasonFor(404))
}

func TestRedirect_SetsLocationAndBody(t *testing.T) {
	r := respond.Redirect(302, "/new&path", false)
	require.Equal(t, "/new&path", r.Headers["Location"])
	require.Contains(t, string(r.Body), "&amp;path")
}

func TestError_CustomPageWhenReadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("custom not found"), 0o644))

	cfg := respond.ErrorPageConfig{Root: dir, ErrorPage: map[string]string{"404": "/404.html"}}
	r := respond.Error(404, cfg, true, false)
	require.Equal(t, "custom not found", string(r.Body))
}

func TestError_FallbackWhenPageMissing(t *testing.T) {
	cfg := respond.ErrorPageConfig{Root: t.TempDir(), ErrorPage: map[string]string{"404": "/missing.html"}}
	r := respond.Error(404, cfg, true, false)
	require.Contains(t, string(r.Body), "404 Not Found")
}

func TestError_ForceCloseOverridesKeepAlive(t *testing.T) {
	r := respond.Error(500, respond.ErrorPageConfig{}, true, true)
	require.False(t, r.KeepAlive)
}

func TestSerialize_KeepAliveHeaders(t *testing.T) {
	r := respond.New(200, "text/plain", []byte("body"), true)
	out := string(respond.Serialize(r, false))

	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, out, "Content-Length: 4\r\n")
	require.Contains(t, out, "Connection: keep-alive\r\n")
	require.True(t, strings.HasSuffix(out, "\r\n\r\nbody"))
}

func TestSerialize_CloseConnection(t *testing.T) {
	r := respond.New(200, "text/plain", []byte("x"), false)
	out := string(respond.Serialize(r, false))
	require.Contains(t, out, "Connection: close\r\n")
	require.NotContains(t, out, "Keep-Alive:")
}

func TestSerialize_SkipBodyForHead(t *testing.T) {
	r := respond.New(200, "text/plain", []byte("hidden"), false)
	out := string(respond.Serialize(r, true))
	require.Contains(t, out, "Content-Length: 6\r\n")
	require.NotContains(t, out, "hidden")
}
