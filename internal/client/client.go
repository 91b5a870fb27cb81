// Package client implements the service-client orchestrator: it resolves the
// platform, locates the tools-service binary, spawns it behind a stdio
// channel, runs the one-shot version-compatibility handshake, and forwards
// typed requests and notifications for the rest of the session's life.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"sqlsvc/internal/common"
	"sqlsvc/internal/config"
	"sqlsvc/internal/host"
	"sqlsvc/internal/language"
	"sqlsvc/internal/locator"
	"sqlsvc/internal/platform"
	"sqlsvc/internal/policy"
	"sqlsvc/internal/telemetry"
	"sqlsvc/internal/transport"
)

// DefaultCompatibleVersionPrefix is matched literally against the start of
// the server's version string. Not a semver range: "1.0" admits "1.0.5" and
// rejects "2.0.3".
const DefaultCompatibleVersionPrefix = "1.0"

// synchronizeSection names the configuration section the server watches for
// changes.
const synchronizeSection = "sqlsvc"

// documentSelector restricts which editor contexts route through the
// session's channel.
var documentSelector = []protocol.DocumentFilter{
	{Language: "sql"},
}

// ServerLocator resolves the service executable for a platform identity.
type ServerLocator interface {
	ServerPath(ctx context.Context, id platform.Identity) (string, error)
}

// Options carries the injected collaborators. Resolver, Locator and Config
// are required; the rest default to logging-backed implementations.
type Options struct {
	Resolver  platform.Resolver
	Locator   ServerLocator
	Config    *config.Config
	Telemetry telemetry.Emitter
	Notifier  host.Notifier
	Host      host.Registry
	Logger    *common.SafeLogger

	// NewChannel overrides transport construction. Tests inject scripted
	// channels through it.
	NewChannel func(transport.ChannelConfig) transport.Channel
}

// ServiceClient owns one session with the tools service. It is constructed
// explicitly by the hosting application and closed by it; there is no global
// instance. A client whose channel has crashed or closed is terminal and is
// never reinitialized.
type ServiceClient struct {
	opts   Options
	logger *common.SafeLogger
	prefix string

	mu          sync.Mutex
	initialized bool
	closed      bool
	channel     transport.Channel
	policy      *policy.Policy
	serverPath  string
	launchSpec  locator.LaunchSpec

	compatible    bool
	compatChecked bool

	ready      chan struct{}
	compatDone chan struct{}
	terminated chan struct{}
}

// New builds a ServiceClient from the given options.
func New(opts Options) (*ServiceClient, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("client: platform resolver is required")
	}
	if opts.Locator == nil {
		return nil, fmt.Errorf("client: server locator is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("client: config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = common.ClientLogger
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewLogEmitter(logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = host.NewLogNotifier(logger)
	}
	if opts.Host == nil {
		opts.Host = host.NewList()
	}
	if opts.NewChannel == nil {
		opts.NewChannel = func(cfg transport.ChannelConfig) transport.Channel {
			return transport.NewStdioChannel(cfg)
		}
	}

	prefix := opts.Config.Service.CompatibleVersion
	if prefix == "" {
		prefix = DefaultCompatibleVersionPrefix
	}

	return &ServiceClient{
		opts:       opts,
		logger:     logger,
		prefix:     prefix,
		ready:      make(chan struct{}),
		compatDone: make(chan struct{}),
		terminated: make(chan struct{}),
	}, nil
}

// Initialize resolves the platform, locates the service binary, spawns the
// process and starts the channel. It returns once the process is spawned;
// WaitReady and WaitCompatible expose the later readiness stages. All
// failures here are fatal: they are logged, surfaced to the user, and leave
// no session behind.
func (c *ServiceClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("client: already initialized")
	}
	c.initialized = true
	c.mu.Unlock()

	id, err := c.opts.Resolver.Resolve(ctx)
	if err != nil {
		c.logger.Error("platform resolution failed: %v", err)
		c.opts.Notifier.ShowError("Invalid platform: the SQL tools service does not support this system.", "", "")
		return err
	}
	c.logger.Info("resolved platform %s", id)

	serverPath, err := c.opts.Locator.ServerPath(ctx, id)
	if err != nil {
		c.logger.Error("invalid service file path: %v", err)
		c.opts.Notifier.ShowError("The SQL tools service could not be found for this platform.", "", "")
		return err
	}

	verbose := c.opts.Config.Logging.Verbose
	spec := locator.DeriveLaunchSpec(serverPath, verbose)
	trace := protocol.TraceOff
	if verbose {
		trace = protocol.TraceVerbose
	}

	channelCfg := transport.ChannelConfig{
		Command:            spec.Command,
		Args:               spec.Args,
		DocumentSelector:   documentSelector,
		SynchronizeSection: synchronizeSection,
		Trace:              trace,
		Logger:             c.logger,
		OnError: func(err error, lastMessage string, retries int) {
			c.policy.Error(err, lastMessage, retries)
		},
		OnClosed: func() {
			c.policy.Closed()
		},
	}

	ch := c.opts.NewChannel(channelCfg)
	pol := policy.New(c.opts.Telemetry, c.opts.Notifier, c.logger, func() {
		close(c.terminated)
		_ = ch.Stop()
	})

	c.mu.Lock()
	c.channel = ch
	c.policy = pol
	c.serverPath = serverPath
	c.launchSpec = spec
	c.mu.Unlock()

	c.logger.Info("starting service: %s %s", spec.Command, strings.Join(spec.Args, " "))
	if err := ch.Start(ctx); err != nil {
		c.mu.Lock()
		c.channel = nil
		c.policy = nil
		c.mu.Unlock()

		c.logger.Error("failed to start service: %v", err)
		c.opts.Notifier.ShowError("The SQL tools service failed to start.", "", "")
		return fmt.Errorf("failed to start service: %w", err)
	}

	c.opts.Host.RegisterLanguage(language.SQL())
	c.opts.Host.RegisterDisposable(channelCloser{c})

	ch.OnReady(func() {
		close(c.ready)
		c.checkCompatibility(context.Background())
	})

	return nil
}

// checkCompatibility runs the one-shot version handshake. The verdict is
// stored and gates all later forwarding; a mismatch warns the user but does
// not tear the session down.
func (c *ServiceClient) checkCompatibility(ctx context.Context) {
	defer close(c.compatDone)

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return
	}

	ok := false
	raw, err := ch.SendRequest(ctx, transport.MethodVersion, nil)
	if err != nil {
		c.logger.Error("version request failed: %v", err)
	} else {
		var version string
		if err := json.Unmarshal(raw, &version); err != nil {
			c.logger.Error("malformed version response %q: %v", raw, err)
		} else if version != "" && strings.HasPrefix(version, c.prefix) {
			ok = true
			c.logger.Info("service version %s is compatible", version)
		} else {
			c.logger.Error("service version %q does not match required prefix %q", version, c.prefix)
		}
	}

	c.mu.Lock()
	c.compatible = ok
	c.compatChecked = true
	c.mu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	// A crash that raced the handshake already raised its own prompt, and a
	// deliberate close needs none.
	if !ok && !closed && !c.Terminated() {
		c.opts.Notifier.ShowWarning("The installed SQL tools service is not compatible with this client.")
	}
}

// WaitReady blocks until the channel has completed its handshake, the
// session terminates, or ctx expires.
func (c *ServiceClient) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.terminated:
		return common.ErrSessionTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitCompatible blocks until the compatibility verdict is known and returns
// it.
func (c *ServiceClient) WaitCompatible(ctx context.Context) (bool, error) {
	select {
	case <-c.compatDone:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.compatible, nil
	case <-c.terminated:
		return false, common.ErrSessionTerminated
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// forwardable reports whether requests may be forwarded right now.
func (c *ServiceClient) forwardable() (transport.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.closed {
		return nil, common.ErrNoActiveSession
	}
	if c.policy != nil && c.policy.Terminated() {
		return nil, common.ErrSessionTerminated
	}
	if c.compatChecked && !c.compatible {
		return nil, common.ErrIncompatibleService
	}
	return c.channel, nil
}

// SendRequest forwards a typed request to the service. It fails with
// ErrNoActiveSession before Initialize, ErrSessionTerminated after a crash,
// and ErrIncompatibleService once the handshake has rejected the server.
func (c *ServiceClient) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ch, err := c.forwardable()
	if err != nil {
		return nil, err
	}
	return ch.SendRequest(ctx, method, params)
}

// SendNotification forwards a one-way notification to the service.
func (c *ServiceClient) SendNotification(ctx context.Context, method string, params interface{}) error {
	ch, err := c.forwardable()
	if err != nil {
		return err
	}
	return ch.SendNotification(ctx, method, params)
}

// OnNotification registers a handler for server-initiated notifications.
func (c *ServiceClient) OnNotification(method string, handler transport.NotificationHandler) error {
	ch, err := c.forwardable()
	if err != nil {
		return err
	}
	ch.OnNotification(method, handler)
	return nil
}

// Done is closed when the crash policy shuts the session down. Callers that
// hold the session open select on it alongside their own lifetime signal.
func (c *ServiceClient) Done() <-chan struct{} {
	return c.terminated
}

// Terminated reports whether the crash policy has shut the session down.
func (c *ServiceClient) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy != nil && c.policy.Terminated()
}

// ServerPath returns the resolved service executable path.
func (c *ServiceClient) ServerPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverPath
}

// LaunchSpec returns the derived launch command.
func (c *ServiceClient) LaunchSpec() locator.LaunchSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launchSpec
}

// Close shuts the session down deliberately. Unlike a crash it raises no
// prompt and emits no telemetry. Safe to call more than once.
func (c *ServiceClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Stop()
}

// channelCloser adapts the client for the host's disposables list without
// letting the host bypass Close's idempotence.
type channelCloser struct {
	c *ServiceClient
}

func (cc channelCloser) Close() error {
	return cc.c.Close()
}

var _ io.Closer = channelCloser{}
