// Package policy implements the crash/close handling for a service session.
// The policy has exactly two states, Active and Terminated, and a single
// rule: a crashed or closed channel is never restarted, because the server
// process state backing the session is gone.
package policy

import (
	"sync"

	"sqlsvc/internal/common"
	"sqlsvc/internal/host"
	"sqlsvc/internal/telemetry"
)

// KnownIssuesURL is offered to the user when the service crashes.
const KnownIssuesURL = "https://github.com/sqlsvc/sqlsvc/wiki/known-issues"

const (
	crashMessage     = "The SQL tools service crashed. The session will not be restarted."
	knownIssuesLabel = "View known issues"
)

type State int

const (
	StateActive State = iota
	StateTerminated
)

// Policy reacts to transport error and close events: one telemetry event,
// one user prompt, then direct the channel to shut down. Terminated is
// terminal; repeated events are absorbed.
type Policy struct {
	emitter  telemetry.Emitter
	notifier host.Notifier
	logger   *common.SafeLogger

	// shutdown directs the channel to stop and never restart.
	shutdown func()

	mu    sync.Mutex
	state State
	once  sync.Once
}

func New(emitter telemetry.Emitter, notifier host.Notifier, logger *common.SafeLogger, shutdown func()) *Policy {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	if logger == nil {
		logger = common.ClientLogger
	}
	return &Policy{
		emitter:  emitter,
		notifier: notifier,
		logger:   logger,
		shutdown: shutdown,
	}
}

// Error handles a transport-level error. lastMessage and retries are
// diagnostic context from the channel.
func (p *Policy) Error(err error, lastMessage string, retries int) {
	p.terminate(func() {
		p.logger.Error("service error (retries %d, last message %q): %v", retries, lastMessage, err)
	})
}

// Closed handles a channel that closed without an explicit error.
func (p *Policy) Closed() {
	p.terminate(func() {
		p.logger.Error("service connection closed unexpectedly")
	})
}

func (p *Policy) terminate(logEvent func()) {
	p.once.Do(func() {
		p.mu.Lock()
		p.state = StateTerminated
		p.mu.Unlock()

		logEvent()

		p.emitter.Emit(telemetry.EventServiceCrash, nil)

		if p.notifier != nil {
			p.notifier.ShowError(crashMessage, knownIssuesLabel, KnownIssuesURL)
		}

		if p.shutdown != nil {
			p.shutdown()
		}
	})
}

// State returns the current policy state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Terminated reports whether the session has been shut down by the policy.
func (p *Policy) Terminated() bool {
	return p.State() == StateTerminated
}
