package connstate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/connstate"
)

func TestNew_StartsInReadingHeaders(t *testing.T) {
	now := time.Now()
	c := connstate.New(7, "0.0.0.0:80", "127.0.0.1:5555", now)
	require.Equal(t, connstate.ReadingHeaders, c.State)
	require.Equal(t, 7, c.Fd)
	require.NotEmpty(t, c.ID.String())
}

func TestTimedOut_HeaderWindow(t *testing.T) {
	now := time.Now()
	c := connstate.New(1, "k", "r", now)

	require.False(t, c.TimedOut(now.Add(connstate.HeaderTimeout-time.Second)))
	require.True(t, c.TimedOut(now.Add(connstate.HeaderTimeout+time.Second)))
}

func TestTimedOut_BodyWindow(t *testing.T) {
	now := time.Now()
	c := connstate.New(1, "k", "r", now)
	c.State = connstate.ReadingBody

	require.False(t, c.TimedOut(now.Add(connstate.BodyTimeout-time.Second)))
	require.True(t, c.TimedOut(now.Add(connstate.BodyTimeout+time.Second)))
}

func TestTimedOut_KeepAliveIdleOverridesState(t *testing.T) {
	now := time.Now()
	c := connstate.New(1, "k", "r", now)
	c.ResetForKeepAlive(now)

	require.False(t, c.TimedOut(now.Add(connstate.KeepAliveIdleTimeout-time.Second)))
	require.True(t, c.TimedOut(now.Add(connstate.KeepAliveIdleTimeout+time.Second)))
}

func TestMarkActive_ClearsKeepAliveIdle(t *testing.T) {
	now := time.Now()
	c := connstate.New(1, "k", "r", now)
	c.ResetForKeepAlive(now)
	require.False(t, c.KeepAliveIdleStart.IsZero())

	c.MarkActive(now.Add(time.Second))
	require.True(t, c.KeepAliveIdleStart.IsZero())
}

func TestResetForKeepAlive_ClearsBuffersAndRequest(t *testing.T) {
	now := time.Now()
	c := connstate.New(1, "k", "r", now)
	c.ReadBuf = []byte("leftover")
	c.WriteBuf = []byte("response")
	c.WriteOff = 8
	c.Req.Method = "GET"
	c.State = connstate.Writing

	c.ResetForKeepAlive(now)

	require.Empty(t, c.ReadBuf)
	require.Empty(t, c.WriteBuf)
	require.Equal(t, 0, c.WriteOff)
	require.Equal(t, "", c.Req.Method)
	require.Equal(t, connstate.ReadingHeaders, c.State)
}

func TestPendingWriteAndAdvance(t *testing.T) {
	c := connstate.New(1, "k", "r", time.Now())
	c.WriteBuf = []byte("hello")

	require.Equal(t, []byte("hello"), c.PendingWrite())
	require.False(t, c.WriteComplete())

	c.Advance(3)
	require.Equal(t, []byte("lo"), c.PendingWrite())

	c.Advance(2)
	require.True(t, c.WriteComplete())
	require.Nil(t, c.PendingWrite())
}
