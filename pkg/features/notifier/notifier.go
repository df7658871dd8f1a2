// Package notifier publishes human-readable registration change messages.
package notifier

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

// Notifier delivers a message to an external channel.
type Notifier interface {
	Publish(ctx context.Context, message string) error
}

// Multi fans a message out to every notifier. All of them are attempted and
// their errors are joined.
type Multi struct {
	notifiers []Notifier
}

// NewMulti drops nil entries.
func NewMulti(notifiers ...Notifier) *Multi {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	return &Multi{notifiers: filtered}
}

func (m *Multi) Publish(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Publish(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop drops messages.
type Noop struct{}

// NewNoop logs reason once and returns a notifier that does nothing.
func NewNoop(logger zerolog.Logger, reason string) Noop {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return Noop{}
}

func (Noop) Publish(context.Context, string) error {
	return nil
}
