package httpparse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/httpmsg"
	"github.com/nabbar/webserv/internal/httpparse"
)

func TestExtractHead_Incomplete(t *testing.T) {
	_, _, ok, err := httpparse.ExtractHead([]byte("GET / HTTP/1.1\r\nHost: x\r\n"))
	require.False(t, ok)
	require.Nil(t, err)
}

func TestExtractHead_Found(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\nbody-starts-here")
	head, consumed, ok, err := httpparse.ExtractHead(buf)
	require.True(t, ok)
	require.Nil(t, err)
	require.Equal(t, "GET / HTTP/1.1\r\nHost: x", string(head))
	require.Equal(t, "body-starts-here", string(buf[consumed:]))
}

func TestExtractHead_TooLargeWithoutTerminator(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\n" + strings.Repeat("X", httpparse.MaxHeadBytes+1))
	_, _, ok, err := httpparse.ExtractHead(buf)
	require.False(t, ok)
	require.NotNil(t, err)
	require.Equal(t, 431, err.Status)
}

func TestParseHead_Basic(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET /a?b=1 HTTP/1.1\r\nHost: example.com\r\n"))
	require.Nil(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/a", req.Path)
	require.Equal(t, "b=1", req.Query)
	require.Equal(t, "example.com", req.Host)
	require.True(t, req.KeepAlive)
	require.Equal(t, httpmsg.BodyNone, req.Mode)
}

func TestParseHead_MissingHostOn11(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 400, err.Status)
}

func TestParseHead_DuplicateHostMismatch(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 400, err.Status)
}

func TestParseHead_DuplicateIdenticalHostAccepted(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: Example.com\r\nHost: example.COM\r\n"))
	require.Nil(t, err)
	require.Equal(t, "Example.com", req.Host)
}

func TestParseHead_ConnectionCloseWinsOverKeepAlive(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close, keep-alive\r\n"))
	require.Nil(t, err)
	require.False(t, req.KeepAlive)
}

func TestParseHead_ContentLengthAndChunkedRejected(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 400, err.Status)
	require.True(t, err.ForceClose)
}

func TestParseHead_UnsupportedTransferEncoding(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 501, err.Status)
}

func TestParseHead_TransferEncodingWithNonChunkedTokenRejected(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip, chunked\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 501, err.Status)
}

func TestParseHead_HeaderContinuation(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nX-Custom: a\r\n b\r\n"))
	require.Nil(t, err)
	v, ok := req.Header("x-custom")
	require.True(t, ok)
	require.Equal(t, "a b", v)
}

func TestParseHead_DuplicateHeadersCoalesced(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET / HTTP/1.1\r\nHost: x\r\nX-A: 1\r\nX-A: 2\r\n"))
	require.Nil(t, err)
	v, _ := req.Header("x-a")
	require.Equal(t, "1, 2", v)
}

func TestParseHead_AbsoluteFormTarget(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("GET http://example.com/a/b?x=1 HTTP/1.1\r\nHost: example.com\r\n"))
	require.Nil(t, err)
	require.Equal(t, "/a/b", req.Path)
	require.Equal(t, "x=1", req.Query)
}

func TestParseHead_OptionsStarTarget(t *testing.T) {
	req, err := httpparse.ParseHead([]byte("OPTIONS * HTTP/1.1\r\nHost: x\r\n"))
	require.Nil(t, err)
	require.Equal(t, "/", req.Path)
}

func TestParseHead_BadVersion(t *testing.T) {
	_, err := httpparse.ParseHead([]byte("GET / HTTP/2.0\r\nHost: x\r\n"))
	require.NotNil(t, err)
	require.Equal(t, 505, err.Status)
}
