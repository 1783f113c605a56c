package statichandler_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/dispatch"
	"github.com/nabbar/webserv/internal/statichandler"
)

func TestServeStatic_ReadsFileWithMimeType(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(p, []byte("<h1>hi</h1>"), 0o644))

	r := statichandler.ServeStatic(p, true)
	require.Equal(t, 200, r.Status)
	require.Equal(t, "<h1>hi</h1>", string(r.Body))
	require.Contains(t, r.Headers["Content-Type"], "text/html")
}

func TestServeStatic_MissingFileIs404(t *testing.T) {
	r := statichandler.ServeStatic(filepath.Join(t.TempDir(), "nope.html"), true)
	require.Equal(t, 404, r.Status)
}

func TestDelete_RemovesExistingFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	r := statichandler.Delete(p, true)
	require.Equal(t, 204, r.Status)
	_, err := os.Stat(p)
	require.True(t, os.IsNotExist(err))
}

func TestDelete_MissingFileIs404(t *testing.T) {
	r := statichandler.Delete(filepath.Join(t.TempDir(), "nope.txt"), true)
	require.Equal(t, 404, r.Status)
}

func TestServeDirectory_PrefersIndexFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("home"), 0o644))

	ec := dispatch.EffectiveConfig{Index: []string{"index.html"}, Autoindex: false}
	r := statichandler.ServeDirectory(dir, ec, true)
	require.Equal(t, 200, r.Status)
	require.Equal(t, "home", string(r.Body))
}

func TestServeDirectory_AutoindexListsEntriesSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	ec := dispatch.EffectiveConfig{Autoindex: true}
	r := statichandler.ServeDirectory(dir, ec, true)
	require.Equal(t, 200, r.Status)

	body := string(r.Body)
	require.True(t, strings.Index(body, "a.txt") < strings.Index(body, "b.txt"))
}

func TestServeDirectory_NoIndexNoAutoindexIs404(t *testing.T) {
	ec := dispatch.EffectiveConfig{Autoindex: false}
	r := statichandler.ServeDirectory(t.TempDir(), ec, true)
	require.Equal(t, 404, r.Status)
}

func TestUploadFilename_RejectsTraversalAndEmpty(t *testing.T) {
	_, ok := statichandler.UploadFilename("/upload/..")
	require.False(t, ok)

	_, ok = statichandler.UploadFilename("/upload/")
	require.False(t, ok)

	name, ok := statichandler.UploadFilename("/upload/report.csv")
	require.True(t, ok)
	require.Equal(t, "report.csv", name)
}

func TestUpload_WritesFileAndRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()

	r := statichandler.Upload(dir, "file.bin", "application/octet-stream", []byte("payload"), "/upload/file.bin", true)
	require.Equal(t, 201, r.Status)
	require.Equal(t, "/upload/file.bin", r.Headers["Location"])

	data, err := os.ReadFile(filepath.Join(dir, "file.bin"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	dup := statichandler.Upload(dir, "file.bin", "application/octet-stream", []byte("again"), "/upload/file.bin", true)
	require.Equal(t, 409, dup.Status)
}

func TestUpload_RejectsMultipartFormData(t *testing.T) {
	dir := t.TempDir()

	r := statichandler.Upload(dir, "file.bin", "multipart/form-data; boundary=x", []byte("--x--"), "/upload/file.bin", true)
	require.Equal(t, 501, r.Status)

	_, err := os.Stat(filepath.Join(dir, "file.bin"))
	require.True(t, os.IsNotExist(err))
}
