package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdioChannel(t *testing.T) {
	c := NewStdioChannel(ChannelConfig{
		Command: "echo",
		Args:    []string{"test"},
	})

	require.NotNil(t, c)
	assert.False(t, c.IsActive(), "channel should not be active before Start()")
}

func TestMessageFraming(t *testing.T) {
	r, w := io.Pipe()

	c := NewStdioChannel(ChannelConfig{})
	c.stdin = w

	go func() {
		err := c.writeMessage(JSONRPCMessage{
			JSONRPC: JSONRPCVersion,
			ID:      "req_1",
			Method:  "version",
		})
		assert.NoError(t, err)
		_ = w.Close()
	}()

	body, err := c.readMessage(bufio.NewReader(r))
	require.NoError(t, err)

	var msg JSONRPCMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "req_1", msg.ID)
	assert.Equal(t, "version", msg.Method)
}

func TestReadMessageMissingContentLength(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_, _ = w.Write([]byte("\r\n"))
		_ = w.Close()
	}()

	c := NewStdioChannel(ChannelConfig{})
	_, err := c.readMessage(bufio.NewReader(r))
	assert.Error(t, err)
}

// cat echoes each framed request straight back, which makes it a minimal
// request/response server: the response carries the request's own ID.
func TestStdioChannelLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}

	c := NewStdioChannel(ChannelConfig{Command: "cat"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsActive())

	select {
	case <-c.Ready():
	case <-ctx.Done():
		t.Fatal("channel never became ready")
	}

	require.NoError(t, c.Stop())
	assert.False(t, c.IsActive())

	// Stop is idempotent.
	require.NoError(t, c.Stop())
}

func TestOnReadyAfterReadyFires(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}

	c := NewStdioChannel(ChannelConfig{Command: "cat"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx))
	defer func() { _ = c.Stop() }()

	select {
	case <-c.Ready():
	case <-ctx.Done():
		t.Fatal("channel never became ready")
	}

	fired := make(chan struct{})
	c.OnReady(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("late OnReady callback never ran")
	}
}

func TestUnexpectedCloseReportsOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}

	var closedCount, errorCount atomic.Int32
	closed := make(chan struct{}, 1)

	c := NewStdioChannel(ChannelConfig{
		Command: "cat",
		OnClosed: func() {
			closedCount.Add(1)
			closed <- struct{}{}
		},
		OnError: func(error, string, int) {
			errorCount.Add(1)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx))

	select {
	case <-c.Ready():
	case <-ctx.Done():
		t.Fatal("channel never became ready")
	}

	// Crash the server out from under the channel.
	require.NoError(t, c.cmd.Process.Kill())

	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("close was never reported")
	}

	// A second close/error observation must not re-fire the callbacks.
	c.reportClosed()
	c.reportError(io.EOF, 1)

	assert.Equal(t, int32(1), closedCount.Load())
	assert.Equal(t, int32(0), errorCount.Load())
}

func TestHandleNotificationDispatch(t *testing.T) {
	c := NewStdioChannel(ChannelConfig{})

	var got json.RawMessage
	c.OnNotification("telemetry/event", func(params json.RawMessage) {
		got = params
	})

	c.handleNotification(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  "telemetry/event",
		Params:  map[string]string{"name": "test"},
	})

	require.NotNil(t, got)
	assert.JSONEq(t, `{"name":"test"}`, string(got))
}

func TestSendRequestNotActive(t *testing.T) {
	c := NewStdioChannel(ChannelConfig{Command: "cat"})

	_, err := c.SendRequest(context.Background(), "version", nil)
	assert.EqualError(t, err, ERROR_CLIENT_NOT_ACTIVE)

	err = c.SendNotification(context.Background(), "shutdown", nil)
	assert.EqualError(t, err, ERROR_CLIENT_NOT_ACTIVE)
}
