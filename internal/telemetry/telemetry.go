package telemetry

import (
	"encoding/json"

	"sqlsvc/internal/common"
)

// Event names emitted by the client.
const (
	EventServiceCrash = "sqltoolsservice/crash"
)

// Emitter sends named telemetry events. Emit is fire-and-forget: it must not
// block and must never return an error to the caller.
type Emitter interface {
	Emit(event string, props map[string]string)
}

// LogEmitter writes events to a SafeLogger as single JSON lines. It is the
// default emitter for CLI use, where no telemetry backend exists.
type LogEmitter struct {
	logger *common.SafeLogger
}

func NewLogEmitter(logger *common.SafeLogger) *LogEmitter {
	if logger == nil {
		logger = common.NewSafeLogger("Telemetry")
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(event string, props map[string]string) {
	payload, err := json.Marshal(struct {
		Event string            `json:"event"`
		Props map[string]string `json:"props,omitempty"`
	}{Event: event, Props: props})
	if err != nil {
		e.logger.Warn("dropping telemetry event %s: %v", event, err)
		return
	}
	e.logger.Info("telemetry %s", payload)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(string, map[string]string) {}
