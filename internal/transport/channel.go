package transport

import (
	"context"
	"encoding/json"

	"go.lsp.dev/protocol"

	"sqlsvc/internal/common"
)

type JSONRPCMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// NotificationHandler receives the raw params of a server notification.
type NotificationHandler func(params json.RawMessage)

// ChannelConfig configures a channel at construction. The error and close
// callbacks are the attachment points for the session's crash policy; the
// channel invokes at most one of them, at most once.
type ChannelConfig struct {
	Command string
	Args    []string

	// DocumentSelector restricts which editor contexts route through this
	// channel. Forwarded verbatim in the channel handshake.
	DocumentSelector []protocol.DocumentFilter

	// SynchronizeSection names the configuration section the server watches.
	SynchronizeSection string

	// Trace is the server-side trace verbosity requested in the handshake.
	Trace protocol.TraceValue

	Logger *common.SafeLogger

	OnError  func(err error, lastMessage string, retries int)
	OnClosed func()
}

// Channel is the bidirectional message-framed pipe to the service process.
type Channel interface {
	Start(ctx context.Context) error
	Stop() error
	SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
	SendNotification(ctx context.Context, method string, params interface{}) error
	OnNotification(method string, handler NotificationHandler)
	OnReady(fn func())
	IsActive() bool
}

const (
	JSONRPCVersion = "2.0"
)
