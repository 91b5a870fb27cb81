package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sqlsvc/internal/telemetry"
)

type recordingEmitter struct {
	events []string
}

func (e *recordingEmitter) Emit(event string, _ map[string]string) {
	e.events = append(e.events, event)
}

type recordingNotifier struct {
	errors   []string
	warnings []string
	linkURLs []string
}

func (n *recordingNotifier) ShowError(message, _, linkURL string) {
	n.errors = append(n.errors, message)
	n.linkURLs = append(n.linkURLs, linkURL)
}

func (n *recordingNotifier) ShowWarning(message string) {
	n.warnings = append(n.warnings, message)
}

func TestPolicyInitialState(t *testing.T) {
	p := New(nil, nil, nil, nil)
	assert.Equal(t, StateActive, p.State())
	assert.False(t, p.Terminated())
}

func TestPolicyErrorTerminates(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := &recordingNotifier{}
	shutdowns := 0

	p := New(emitter, notifier, nil, func() { shutdowns++ })
	p.Error(errors.New("pipe broken"), `{"method":"version"}`, 3)

	assert.True(t, p.Terminated())
	assert.Equal(t, []string{telemetry.EventServiceCrash}, emitter.events)
	assert.Len(t, notifier.errors, 1)
	assert.Equal(t, []string{KnownIssuesURL}, notifier.linkURLs)
	assert.Equal(t, 1, shutdowns)
}

func TestPolicyClosedTerminates(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := &recordingNotifier{}
	shutdowns := 0

	p := New(emitter, notifier, nil, func() { shutdowns++ })
	p.Closed()

	assert.True(t, p.Terminated())
	assert.Equal(t, []string{telemetry.EventServiceCrash}, emitter.events)
	assert.Len(t, notifier.errors, 1)
	assert.Equal(t, 1, shutdowns)
}

func TestPolicyRepeatedEventsAreAbsorbed(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := &recordingNotifier{}
	shutdowns := 0

	p := New(emitter, notifier, nil, func() { shutdowns++ })
	p.Error(errors.New("crash"), "", 1)
	p.Closed()
	p.Error(errors.New("crash again"), "", 2)

	// One telemetry event, one prompt, one shutdown, no matter how many
	// events the channel observes.
	assert.Len(t, emitter.events, 1)
	assert.Len(t, notifier.errors, 1)
	assert.Equal(t, 1, shutdowns)
	assert.True(t, p.Terminated())
}
