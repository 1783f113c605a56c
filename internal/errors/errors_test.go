package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	liberr "github.com/nabbar/webserv/internal/errors"
)

const testCode liberr.CodeError = iota + liberr.MinAvailable

func init() {
	if !liberr.ExistInMapMessage(testCode) {
		liberr.RegisterIdFctMessage(testCode, func(c liberr.CodeError) string {
			if c == testCode {
				return "test failure"
			}
			return ""
		})
	}
}

func TestError_WithoutParent(t *testing.T) {
	e := testCode.Error(nil)
	require.False(t, e.HasParent())
	require.True(t, e.IsCode(testCode))
	require.Equal(t, "[2000] test failure", e.Error())
}

func TestError_WithParentChainsMessage(t *testing.T) {
	e := testCode.Error(fmt.Errorf("disk full"))
	require.True(t, e.HasParent())
	require.Contains(t, e.Error(), "disk full")
	require.Equal(t, "disk full", e.Unwrap().Error())
}

func TestAddParentError_IgnoresNil(t *testing.T) {
	e := testCode.Error(nil)
	e.AddParentError(nil, fmt.Errorf("real error"), nil)
	require.True(t, e.HasParent())
}

func TestUnknownError_HasFixedMessage(t *testing.T) {
	require.Equal(t, liberr.UnknownMessage, liberr.UnknownError.Message())
}

func TestMessage_UnregisteredBlockFallsBackToUnknown(t *testing.T) {
	unregistered := liberr.MinAvailable + 900
	require.Equal(t, liberr.UnknownMessage, unregistered.Message())
}
