package infra

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var initPC = caller()

func caller() Frame {
	var PCs [3]uintptr
	n := runtime.Callers(2, PCs[:])
	frames := runtime.CallersFrames(PCs[:n])
	frame, _ := frames.Next()
	return Frame(frame.PC)
}

func TestFrameFormat(t *testing.T) {
	testcases := []struct {
		Frame
		format string
		want   string
	}{
		{
			initPC,
			"%s",
			"err_stack_test.go",
		},
		{
			initPC,
			"%n",
			"init",
		},
		{
			Frame(0),
			"%s",
			"unknownFile",
		},
		{
			Frame(0),
			"%n",
			"unknownFunc",
		},
		{
			Frame(0),
			"%d",
			"0",
		},
		{
			Frame(0),
			"%v",
			"unknownFile:0",
		},
	}

	for _, tc := range testcases {
		frameRes := fmt.Sprintf(tc.format, tc.Frame)
		require.Equal(t, tc.want, frameRes)
	}
}

func TestFrameMarshal(t *testing.T) {
	_bytes, err := Frame(0).MarshalText()
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("unknownFrame"), _bytes))

	_bytes, err = json.Marshal(Frame(0))
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("{\"frame\":\"unknownFrame\"}"), _bytes))

	_bytes, err = initPC.MarshalText()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(_bytes), "github.com/benz9527/xrbtree/lib/infra.init "))
	require.Contains(t, string(_bytes), "err_stack_test.go:")
}

func TestErrorStack(t *testing.T) {
	errBase := errors.New("base")

	err := NewErrorStack("new one")
	require.Equal(t, "new one", err.Error())
	var es ErrorStack
	require.True(t, errors.As(err, &es))
	require.NotEmpty(t, es.Frames())
	require.Equal(t, "err_stack_test.go", fmt.Sprintf("%s", es.Frames()[0]))
	require.Equal(t, "TestErrorStack", fmt.Sprintf("%n", es.Frames()[0]))

	err = WrapErrorStack(errBase)
	require.ErrorIs(t, err, errBase)
	require.Equal(t, "base", err.Error())
	require.Same(t, err, WrapErrorStack(err))

	err = WrapErrorStackWithMessage(errBase, "wrapped")
	require.ErrorIs(t, err, errBase)
	require.Equal(t, "wrapped: base", err.Error())
	require.True(t, strings.HasPrefix(fmt.Sprintf("%+v", err), "wrapped: base\n"))

	require.Nil(t, WrapErrorStack(nil))
	require.Nil(t, WrapErrorStackWithMessage(nil, "ignored"))
}

func TestErrorStackMarshalLogObject(t *testing.T) {
	err := WrapErrorStackWithMessage(errors.New("base"), "wrapped")
	var es ErrorStack
	require.True(t, errors.As(err, &es))

	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, es.MarshalLogObject(enc))
	require.Equal(t, "wrapped: base", enc.Fields["error"])
	frames, ok := enc.Fields["errorStack"].([]any)
	require.True(t, ok)
	require.Len(t, frames, len(es.Frames()))
}

func newErrorStackInHelper() error {
	return NewErrorStack("helper")
}

func TestErrorStackCallerFrames(t *testing.T) {
	var es ErrorStack
	require.True(t, errors.As(newErrorStackInHelper(), &es))
	frames := es.Frames()
	require.GreaterOrEqual(t, len(frames), 2)
	require.Equal(t, "newErrorStackInHelper", fmt.Sprintf("%n", frames[0]))
	require.Equal(t, "TestErrorStackCallerFrames", fmt.Sprintf("%n", frames[1]))

	err := WrapErrorStackWithMessage(es, "outer")
	require.Equal(t, "outer: helper", err.Error())
	require.ErrorIs(t, err, es)
	var outer ErrorStack
	require.True(t, errors.As(err, &outer))
	require.Equal(t, "TestErrorStackCallerFrames", fmt.Sprintf("%n", outer.Frames()[0]))
}
