package pollreg_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/nabbar/webserv/internal/pollreg"
)

func pipeFds(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestAddThenRemove_LenTracksRegistration(t *testing.T) {
	reg, err := pollreg.New(50 * time.Millisecond)
	require.Nil(t, err)
	defer reg.Close()

	r, _ := pipeFds(t)
	require.Nil(t, reg.Add(r, pollreg.Readable))
	require.Equal(t, 1, reg.Len())

	require.Nil(t, reg.Remove(r))
	require.Equal(t, 0, reg.Len())
}

func TestAdd_DuplicateIsNoop(t *testing.T) {
	reg, err := pollreg.New(50 * time.Millisecond)
	require.Nil(t, err)
	defer reg.Close()

	r, _ := pipeFds(t)
	require.Nil(t, reg.Add(r, pollreg.Readable))
	require.Nil(t, reg.Add(r, pollreg.Readable))
	require.Equal(t, 1, reg.Len())
}

func TestWait_ReportsReadableOnWrite(t *testing.T) {
	reg, err := pollreg.New(200 * time.Millisecond)
	require.Nil(t, err)
	defer reg.Close()

	r, w := pipeFds(t)
	require.Nil(t, reg.Add(r, pollreg.Readable))

	_, werr := unix.Write(w, []byte("x"))
	require.NoError(t, werr)

	events, werr2 := reg.Wait()
	require.Nil(t, werr2)
	require.Len(t, events, 1)
	require.Equal(t, r, events[0].Fd)
	require.True(t, events[0].Readable)
}

func TestWait_EmptyOnTickExpiry(t *testing.T) {
	reg, err := pollreg.New(30 * time.Millisecond)
	require.Nil(t, err)
	defer reg.Close()

	events, werr := reg.Wait()
	require.Nil(t, werr)
	require.Empty(t, events)
}

func TestRemove_SwapsLastSlotIn(t *testing.T) {
	reg, err := pollreg.New(50 * time.Millisecond)
	require.Nil(t, err)
	defer reg.Close()

	a, _ := pipeFds(t)
	b, _ := pipeFds(t)
	c, _ := pipeFds(t)

	require.Nil(t, reg.Add(a, pollreg.Readable))
	require.Nil(t, reg.Add(b, pollreg.Readable))
	require.Nil(t, reg.Add(c, pollreg.Readable))
	require.Equal(t, 3, reg.Len())

	require.Nil(t, reg.Remove(a))
	require.Equal(t, 2, reg.Len())

	require.Nil(t, reg.Remove(b))
	require.Nil(t, reg.Remove(c))
	require.Equal(t, 0, reg.Len())
}
