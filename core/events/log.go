package events

import (
	"log/slog"

	"aurum/core/types"
)

// Renderer is implemented by event payloads that can produce their wire
// representation with literal attribute values.
type Renderer interface {
	Event() *types.Event
}

// LogEmitter renders every emitted event as one structured log line so
// off-process observers can reconstruct purchase and withdrawal state from
// the log stream.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter wraps the logger into an Emitter. A nil logger falls back to
// the process default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(evt Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	rendered, ok := evt.(Renderer)
	if !ok {
		l.logger.Info("event", slog.String("type", evt.EventType()))
		return
	}
	wire := rendered.Event()
	if wire == nil {
		return
	}
	attrs := make([]any, 0, len(wire.Attributes)*2+2)
	attrs = append(attrs, slog.String("type", wire.Type))
	for key, value := range wire.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Info("event", attrs...)
}
