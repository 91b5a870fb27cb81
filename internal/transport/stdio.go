package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/protocol"

	"sqlsvc/internal/common"
)

// maxConsecutiveReadErrors bounds how long the reader loop tolerates a
// corrupted stream before reporting a transport error.
const maxConsecutiveReadErrors = 5

// initializeParams is the payload of the channel handshake request.
type initializeParams struct {
	ProcessID          int                       `json:"processId"`
	DocumentSelector   []protocol.DocumentFilter `json:"documentSelector,omitempty"`
	SynchronizeSection string                    `json:"synchronizeSection,omitempty"`
	Trace              protocol.TraceValue       `json:"trace,omitempty"`
}

// StdioChannel is a Channel over a spawned process's standard streams using
// Content-Length framed JSON-RPC messages. A channel is started at most once
// and never restarted: after an error or close it is permanently dead.
type StdioChannel struct {
	config ChannelConfig
	logger *common.SafeLogger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu       sync.Mutex
	writeMu  sync.Mutex
	active   bool
	stopping bool
	requests map[string]chan rpcOutcome
	handlers map[string][]NotificationHandler
	nextID   int

	// lastMessage is the last framed message written, reported to the error
	// callback for diagnostics.
	lastMessage string

	ready          chan struct{}
	readyOnce      sync.Once
	readyCallbacks []func()

	// reportOnce guarantees the session policy sees at most one error-or-close
	// event from this channel.
	reportOnce sync.Once

	stopCh chan struct{}
	done   chan struct{}
}

func NewStdioChannel(config ChannelConfig) *StdioChannel {
	logger := config.Logger
	if logger == nil {
		logger = common.TransportLogger
	}
	return &StdioChannel{
		config:   config,
		logger:   logger,
		requests: make(map[string]chan rpcOutcome),
		handlers: make(map[string][]NotificationHandler),
		ready:    make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

type rpcOutcome struct {
	result json.RawMessage
	err    *RPCError
}

// Start spawns the service process and begins reading responses. The ready
// signal fires asynchronously once the handshake round-trip completes.
func (c *StdioChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return errors.New("channel already active")
	}

	c.cmd = exec.CommandContext(ctx, c.config.Command, c.config.Args...)

	var err error
	c.stdin, err = c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	c.stdout, err = c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	c.stderr, err = c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start service process: %w", err)
	}

	c.active = true

	go c.handleResponses()
	go c.logStderr()
	go c.handshake(ctx)

	return nil
}

// handshake performs the initialize round-trip and fires the ready signal.
func (c *StdioChannel) handshake(ctx context.Context) {
	params := initializeParams{
		ProcessID:          os.Getpid(),
		DocumentSelector:   c.config.DocumentSelector,
		SynchronizeSection: c.config.SynchronizeSection,
		Trace:              c.config.Trace,
	}

	if _, err := c.SendRequest(ctx, MethodInitialize, params); err != nil {
		c.logger.Error("channel handshake failed: %v", err)
		c.reportError(fmt.Errorf("handshake failed: %w", err), 0)
		return
	}

	c.signalReady()
}

func (c *StdioChannel) signalReady() {
	c.readyOnce.Do(func() {
		c.mu.Lock()
		callbacks := c.readyCallbacks
		c.readyCallbacks = nil
		c.mu.Unlock()

		close(c.ready)
		for _, fn := range callbacks {
			go fn()
		}
	})
}

// OnReady registers fn to run once the handshake has completed. A callback
// registered after the fact runs immediately.
func (c *StdioChannel) OnReady(fn func()) {
	c.mu.Lock()
	select {
	case <-c.ready:
		c.mu.Unlock()
		go fn()
		return
	default:
	}
	c.readyCallbacks = append(c.readyCallbacks, fn)
	c.mu.Unlock()
}

// Ready exposes the ready signal for callers that prefer to select on it.
func (c *StdioChannel) Ready() <-chan struct{} {
	return c.ready
}

func (c *StdioChannel) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil, errors.New(ERROR_CLIENT_NOT_ACTIVE)
	}
	c.nextID++
	id := fmt.Sprintf("req_%d", c.nextID)
	respCh := make(chan rpcOutcome, 1)
	c.requests[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
	}()

	request := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}

	if err := c.writeMessage(request); err != nil {
		return nil, fmt.Errorf(ERROR_SEND_REQUEST, err)
	}

	select {
	case outcome := <-respCh:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return outcome.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopCh:
		return nil, errors.New(ERROR_CLIENT_STOPPED)
	}
}

func (c *StdioChannel) SendNotification(ctx context.Context, method string, params interface{}) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return errors.New(ERROR_CLIENT_NOT_ACTIVE)
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	notification := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}

	if err := c.writeMessage(notification); err != nil {
		return fmt.Errorf(ERROR_SEND_NOTIFICATION, err)
	}

	return nil
}

// OnNotification registers a handler for server-initiated notifications of
// the given method. Multiple handlers run in registration order.
func (c *StdioChannel) OnNotification(method string, handler NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = append(c.handlers[method], handler)
}

// Stop shuts the channel down, escalating from a graceful wait to interrupt
// and finally kill. Safe to call more than once; the channel never restarts.
func (c *StdioChannel) Stop() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}

	c.active = false
	c.stopping = true
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}

	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	cmd := c.cmd
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		exited := make(chan error, 1)
		go func() {
			exited <- cmd.Wait()
		}()

		select {
		case err := <-exited:
			if err != nil {
				c.logger.Warn("service process exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			c.logger.Warn("service process did not exit, sending interrupt")
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				c.logger.Warn("failed to send interrupt: %v", err)
			}

			select {
			case <-exited:
			case <-time.After(2 * time.Second):
				c.logger.Warn("service process ignored interrupt, killing")
				if err := cmd.Process.Kill(); err != nil {
					c.logger.Warn("failed to kill service process: %v", err)
				}
				<-exited
			}
		}
	}

	if c.stdout != nil {
		_ = c.stdout.Close()
	}
	if c.stderr != nil {
		_ = c.stderr.Close()
	}

	<-c.done

	return nil
}

// Close makes the channel an io.Closer for the host's disposables list.
func (c *StdioChannel) Close() error {
	return c.Stop()
}

func (c *StdioChannel) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *StdioChannel) handleResponses() {
	defer func() {
		// Fail anything still in flight so callers do not hang on a dead
		// process.
		c.mu.Lock()
		for id, ch := range c.requests {
			select {
			case ch <- rpcOutcome{err: &RPCError{Code: -32603, Message: ERROR_CLIENT_STOPPED}}:
			default:
			}
			delete(c.requests, id)
		}
		c.mu.Unlock()

		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}()

	reader := bufio.NewReader(c.stdout)
	consecutiveErrors := 0

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		message, err := c.readMessage(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
				c.reportClosed()
				return
			}

			consecutiveErrors++
			c.logger.Error("error reading message (consecutive: %d/%d): %v",
				consecutiveErrors, maxConsecutiveReadErrors, err)

			if consecutiveErrors >= maxConsecutiveReadErrors {
				c.reportError(err, consecutiveErrors)
				return
			}
			continue
		}

		consecutiveErrors = 0

		var msg JSONRPCMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Error("error parsing JSON-RPC message: %v", err)
			continue
		}

		if msg.ID != nil {
			c.handleResponse(msg)
		} else {
			c.handleNotification(msg)
		}
	}
}

func (c *StdioChannel) handleResponse(msg JSONRPCMessage) {
	idStr := fmt.Sprintf("%v", msg.ID)

	c.mu.Lock()
	respCh, exists := c.requests[idStr]
	c.mu.Unlock()

	if !exists {
		c.logger.Warn("received response for unknown request ID: %v", msg.ID)
		return
	}

	var outcome rpcOutcome
	if msg.Error != nil {
		outcome.err = msg.Error
	} else {
		resultData, err := json.Marshal(msg.Result)
		if err != nil {
			outcome.err = &RPCError{Code: -32603, Message: "internal error: failed to marshal result"}
		} else {
			outcome.result = resultData
		}
	}

	select {
	case respCh <- outcome:
	default:
		// Request already abandoned.
	}
}

func (c *StdioChannel) handleNotification(msg JSONRPCMessage) {
	c.mu.Lock()
	handlers := append([]NotificationHandler(nil), c.handlers[msg.Method]...)
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug("unhandled notification: %s", msg.Method)
		return
	}

	params, err := json.Marshal(msg.Params)
	if err != nil {
		c.logger.Error("failed to marshal notification params for %s: %v", msg.Method, err)
		return
	}

	for _, handler := range handlers {
		handler(params)
	}
}

// reportClosed notifies the policy of an unexpected close. A close observed
// during Stop is expected and not reported.
func (c *StdioChannel) reportClosed() {
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if stopping {
		return
	}

	c.reportOnce.Do(func() {
		c.logger.Error("service process closed the connection")
		if c.config.OnClosed != nil {
			// Off the reader goroutine: the callback may call Stop, which
			// waits for the reader to exit.
			go c.config.OnClosed()
		}
	})
}

func (c *StdioChannel) reportError(err error, retries int) {
	c.mu.Lock()
	stopping := c.stopping
	lastMessage := c.lastMessage
	c.mu.Unlock()
	if stopping {
		return
	}

	c.reportOnce.Do(func() {
		if c.config.OnError != nil {
			go c.config.OnError(err, lastMessage, retries)
		}
	})
}

func (c *StdioChannel) writeMessage(msg JSONRPCMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf(ERROR_MARSHAL_MESSAGE, err)
	}

	content := fmt.Sprintf(PROTOCOL_HEADER_FORMAT, len(jsonData), jsonData)

	// Single writer at a time keeps frames intact and preserves program
	// order of invocation.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write([]byte(content)); err != nil {
		return fmt.Errorf(ERROR_WRITE_MESSAGE, err)
	}

	c.mu.Lock()
	c.lastMessage = string(jsonData)
	c.mu.Unlock()

	return nil
}

func (c *StdioChannel) readMessage(reader *bufio.Reader) ([]byte, error) {
	var contentLength int

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		if strings.HasPrefix(line, PROTOCOL_CONTENT_LENGTH_PREFIX) {
			lengthStr := strings.TrimPrefix(line, PROTOCOL_CONTENT_LENGTH_PREFIX)
			contentLength, err = strconv.Atoi(lengthStr)
			if err != nil {
				return nil, fmt.Errorf(ERROR_INVALID_CONTENT_LENGTH, lengthStr)
			}
		}
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("no Content-Length header found")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return body, nil
}

func (c *StdioChannel) logStderr() {
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Debug("service stderr: %s", scanner.Text())
	}
}
