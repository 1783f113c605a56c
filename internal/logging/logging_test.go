package logging_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/logging"
)

func TestNew_ExplicitLevelAndFormat(t *testing.T) {
	log := logging.New(logging.Options{Level: "debug", Format: "json"})
	require.Equal(t, logrus.DebugLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := logging.New(logging.Options{Level: "not-a-level"})
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestForConnection_AttachesConnAndRemoteFields(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Format: "json"})
	log.SetOutput(&buf)

	logging.ForConnection(log, "conn-1", "127.0.0.1:1234").Info("hello")

	out := buf.String()
	require.Contains(t, out, `"conn":"conn-1"`)
	require.Contains(t, out, `"remote":"127.0.0.1:1234"`)
}
