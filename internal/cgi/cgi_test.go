package cgi_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/cgi"
)

func TestBuildEnviron_RequiredVars(t *testing.T) {
	env := cgi.BuildEnviron(cgi.Request{
		Method:        "POST",
		RequestURI:    "/cgi/x.py",
		ScriptPath:    "/www/cgi/x.py",
		ServerProto:   "HTTP/1.1",
		ContentLength: 0,
		Headers:       map[string]string{"x-custom-header": "v", "bad header!": "dropped"},
	})

	require.Contains(t, env, "GATEWAY_INTERFACE=CGI/1.1")
	require.Contains(t, env, "REQUEST_METHOD=POST")
	require.Contains(t, env, "CONTENT_LENGTH=0")
	require.Contains(t, env, "HTTP_X_CUSTOM_HEADER=v")
	for _, e := range env {
		require.NotContains(t, e, "dropped")
	}
}

func TestParseOutput_StatusHeader(t *testing.T) {
	out, errResp := cgi.ParseOutput([]byte("Status: 201 Created\r\nContent-Type: text/plain\r\n\r\nok"))
	require.Nil(t, errResp)
	require.Equal(t, 201, out.Status)
	require.Equal(t, "ok", string(out.Body))
}

func TestParseOutput_LocationDefaultsTo302(t *testing.T) {
	out, errResp := cgi.ParseOutput([]byte("Location: /elsewhere\r\n\r\n"))
	require.Nil(t, errResp)
	require.Equal(t, 302, out.Status)
}

func TestParseOutput_MissingTerminator(t *testing.T) {
	_, errResp := cgi.ParseOutput([]byte("Content-Type: text/plain"))
	require.NotNil(t, errResp)
	require.Equal(t, 502, errResp.Status)
}

func TestParseOutput_MissingRequiredHeader(t *testing.T) {
	_, errResp := cgi.ParseOutput([]byte("X-Foo: bar\r\n\r\nbody"))
	require.NotNil(t, errResp)
	require.Equal(t, 500, errResp.Status)
}

func TestParseOutput_ManagedHeadersDropped(t *testing.T) {
	out, errResp := cgi.ParseOutput([]byte("Content-Type: text/plain\r\nContent-Length: 999\r\nConnection: close\r\n\r\nok"))
	require.Nil(t, errResp)
	_, hasCL := out.Headers["content-length"]
	require.False(t, hasCL)
}

func TestParseOutput_LFLFFallback(t *testing.T) {
	out, errResp := cgi.ParseOutput([]byte("Content-Type: text/plain\n\nbody"))
	require.Nil(t, errResp)
	require.Equal(t, "body", string(out.Body))
}

func TestRun_NonZeroExitWithEmptyOutputIsExitStatusError(t *testing.T) {
	_, rerr := cgi.Run(cgi.Request{
		Interpreter: "/bin/false",
		ScriptPath:  "",
		Timeout:     time.Second,
	})
	require.NotNil(t, rerr)
	require.True(t, rerr.IsCode(cgi.ErrorExitStatus))
}

func TestRun_CleanExitForwardsOutput(t *testing.T) {
	data, rerr := cgi.Run(cgi.Request{
		Interpreter: "/bin/echo",
		ScriptPath:  "Content-Type: text/plain",
		Timeout:     time.Second,
	})
	require.Nil(t, rerr)
	require.Contains(t, string(data), "Content-Type: text/plain")
}
