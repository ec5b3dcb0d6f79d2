// Package alert delivers operational alerts to operators. Delivery is best
// effort: a failed alert never changes the outcome of a ledger operation.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type Alert struct {
	Level   Level
	Title   string
	Message string
	Fields  map[string]any
	Time    time.Time
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Send delivers a through n and logs delivery failures. n may be nil.
func Send(ctx context.Context, logger *slog.Logger, n Notifier, a Alert) {
	if n == nil {
		return
	}
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	if err := n.Notify(ctx, a); err != nil {
		logger.Error("alert delivery failed", "title", a.Title, "level", a.Level, "error", err)
	}
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	level := slog.LevelInfo
	switch a.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelCritical:
		level = slog.LevelError
	}

	attrs := make([]any, 0, 2*len(a.Fields)+2)
	attrs = append(attrs, "alert", a.Title)
	for k, v := range a.Fields {
		attrs = append(attrs, k, v)
	}
	n.logger.Log(ctx, level, a.Message, attrs...)
	return nil
}
