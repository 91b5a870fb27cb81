package host

import (
	"io"
	"sync"

	"sqlsvc/internal/common"
	"sqlsvc/internal/language"
)

// Registry is the narrow slice of the hosting application the client talks
// to: an append-only disposables list drained at deactivation, and language
// metadata registration for the handled content type.
type Registry interface {
	RegisterDisposable(io.Closer)
	RegisterLanguage(language.Configuration)
}

// Notifier raises user-facing notices. Implementations must not block; the
// user acting on a link is always optional.
type Notifier interface {
	ShowError(message, linkLabel, linkURL string)
	ShowWarning(message string)
}

// List is a Registry backed by a slice of disposables. Close drains the list
// in reverse registration order, as the host would on deactivation.
type List struct {
	mu          sync.Mutex
	disposables []io.Closer
	languages   []language.Configuration
}

func NewList() *List {
	return &List{}
}

func (l *List) RegisterDisposable(c io.Closer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposables = append(l.disposables, c)
}

func (l *List) RegisterLanguage(cfg language.Configuration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.languages = append(l.languages, cfg)
}

// Languages returns the registered language configurations.
func (l *List) Languages() []language.Configuration {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]language.Configuration, len(l.languages))
	copy(out, l.languages)
	return out
}

// Close disposes everything registered so far. Errors are collected; the
// first one is returned after all disposables have run.
func (l *List) Close() error {
	l.mu.Lock()
	disposables := l.disposables
	l.disposables = nil
	l.mu.Unlock()

	var first error
	for i := len(disposables) - 1; i >= 0; i-- {
		if err := disposables[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogNotifier renders notices through a SafeLogger. The CLI uses it in place
// of an editor notification surface.
type LogNotifier struct {
	logger *common.SafeLogger
}

func NewLogNotifier(logger *common.SafeLogger) *LogNotifier {
	if logger == nil {
		logger = common.NewSafeLogger("Host")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ShowError(message, linkLabel, linkURL string) {
	if linkURL != "" {
		n.logger.Error("%s (%s: %s)", message, linkLabel, linkURL)
		return
	}
	n.logger.Error("%s", message)
}

func (n *LogNotifier) ShowWarning(message string) {
	n.logger.Warn("%s", message)
}
