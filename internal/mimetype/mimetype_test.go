package mimetype_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/mimetype"
)

func TestForPath_KnownExtensions(t *testing.T) {
	require.Equal(t, "text/html", mimetype.ForPath("/index.html"))
	require.Equal(t, "image/png", mimetype.ForPath("/assets/logo.PNG"))
	require.Equal(t, "application/javascript", mimetype.ForPath("app.js"))
}

func TestForPath_UnknownExtensionFallsBack(t *testing.T) {
	require.Equal(t, "application/octet-stream", mimetype.ForPath("/data.unknownext"))
}

func TestForPath_NoExtensionFallsBack(t *testing.T) {
	require.Equal(t, "application/octet-stream", mimetype.ForPath("/README"))
}

func TestForPath_DotfileWithoutExtensionFallsBack(t *testing.T) {
	require.Equal(t, "application/octet-stream", mimetype.ForPath("/.gitignore"))
}
