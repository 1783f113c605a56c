package dispatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/conf"
	"github.com/nabbar/webserv/internal/dispatch"
)

func TestSelectVhost_ByName(t *testing.T) {
	servers := []conf.Server{
		{Names: []string{"a.com"}},
		{Names: []string{"b.com"}},
	}
	got := dispatch.SelectVhost(servers, "b.com")
	require.Same(t, &servers[1], got)
}

func TestSelectVhost_FallbackFirst(t *testing.T) {
	servers := []conf.Server{{Names: []string{"a.com"}}, {Names: []string{"b.com"}}}
	got := dispatch.SelectVhost(servers, "nope.com")
	require.Same(t, &servers[0], got)
}

func TestSelectLocation_LongestPrefix(t *testing.T) {
	srv := &conf.Server{Locations: []conf.Location{
		{Path: "/"},
		{Path: "/app"},
		{Path: "/app/api"},
	}}
	got := dispatch.SelectLocation(srv, "/app/api/users")
	require.Equal(t, "/app/api", got.Path)
}

func TestSelectLocation_BoundaryRespected(t *testing.T) {
	srv := &conf.Server{Locations: []conf.Location{{Path: "/app"}}}
	got := dispatch.SelectLocation(srv, "/application")
	require.Nil(t, got)
}

func TestMapFilesystemPath_SimpleTraversal(t *testing.T) {
	p, ok := dispatch.MapFilesystemPath(nil, "/r", "/a/../b")
	require.True(t, ok)
	require.Equal(t, "/r/b", p)
}

func TestMapFilesystemPath_EscapeRejected(t *testing.T) {
	_, ok := dispatch.MapFilesystemPath(nil, "/r", "/a/../../b")
	require.False(t, ok)
}

func TestMapFilesystemPath_Idempotent(t *testing.T) {
	p1, ok1 := dispatch.MapFilesystemPath(nil, "/r", "/a/b")
	require.True(t, ok1)
	p2, ok2 := dispatch.MapFilesystemPath(nil, "/r", p1[len("/r"):])
	require.True(t, ok2)
	require.Equal(t, p1, p2)
}

func TestBuildEffective_Defaults(t *testing.T) {
	srv := &conf.Server{Directive: map[string]string{}}
	ec := dispatch.BuildEffective(srv, nil)
	require.Equal(t, ".", ec.Root)
	require.ElementsMatch(t, []string{"GET", "POST"}, ec.Methods)
}

func TestBuildEffective_LocationOverridesServer(t *testing.T) {
	srv := &conf.Server{Directive: map[string]string{"root": "./srv"}}
	loc := &conf.Location{Directive: map[string]string{"root": "./loc"}}
	ec := dispatch.BuildEffective(srv, loc)
	require.Equal(t, "./loc", ec.Root)
}

func TestMethodAllowed(t *testing.T) {
	ec := dispatch.BuildEffective(&conf.Server{}, nil)
	implemented, allowed := dispatch.MethodAllowed("DELETE", ec)
	require.True(t, implemented)
	require.False(t, allowed)

	implemented, allowed = dispatch.MethodAllowed("PATCH", ec)
	require.False(t, implemented)
	require.False(t, allowed)
}

func TestParseSizeSuffixes(t *testing.T) {
	srv := &conf.Server{Directive: map[string]string{"client_max_body_size": "2K"}}
	ec := dispatch.BuildEffective(srv, nil)
	require.Equal(t, int64(2048), ec.ClientMaxBodySize)
}

func TestClassify_GetOnCGIExtensionIsServedStatic(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "x.py")
	require.NoError(t, os.WriteFile(script, []byte("print('hi')"), 0o644))

	ec := dispatch.EffectiveConfig{CGIPass: map[string]string{".py": "/usr/bin/python3"}}

	require.Equal(t, dispatch.ClassStatic, dispatch.Classify("GET", ec, script))
	require.Equal(t, dispatch.ClassCGI, dispatch.Classify("POST", ec, script))
}
