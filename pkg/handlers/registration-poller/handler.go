package registrationpoller

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
	"github.com/nsutclif/voipms-monitor/pkg/features/registration"
)

type StatusSource interface {
	Fetch(ctx context.Context, account string) (registration.RegistrationStatus, error)
}

type SnapshotStore interface {
	Get(ctx context.Context, account string) (*registration.RegistrationStatus, error)
	Put(ctx context.Context, account string, status registration.RegistrationStatus) error
}

type Notifier interface {
	Publish(ctx context.Context, message string) error
}

type Handler struct {
	Account  string
	Source   StatusSource
	Store    SnapshotStore
	Notifier Notifier
	Logger   zerolog.Logger
}

// Handle runs one poll cycle for a scheduled invocation. A returned error
// marks the invocation as failed.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	logger := h.Logger.With().Str("account", h.Account).Str("event_id", event.ID).Logger()

	outcome, err := h.Poll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("registration poll failed")
		return err
	}

	if outcome.Changed {
		logger.Info().Str("message", outcome.Message).Msg("registration status changed")
	} else {
		logger.Debug().Msg("registration status unchanged")
	}
	return nil
}

// Poll fetches the current status and the stored snapshot concurrently,
// decides whether anything changed and, if so, persists and notifies
// concurrently. Collaborator errors are returned as-is. Persist and notify
// are not transactional: one may succeed while the other fails.
func (h *Handler) Poll(ctx context.Context) (registration.Outcome, error) {
	var (
		current  registration.RegistrationStatus
		previous *registration.RegistrationStatus
	)

	// Goroutines report through their own vars so neither read cancels the other.
	var reads errgroup.Group
	var fetchErr, getErr error
	reads.Go(func() error {
		current, fetchErr = h.Source.Fetch(ctx, h.Account)
		return nil
	})
	reads.Go(func() error {
		previous, getErr = h.Store.Get(ctx, h.Account)
		return nil
	})
	_ = reads.Wait()

	if fetchErr != nil {
		if status, ok := errors.ProviderStatus(fetchErr); ok {
			return registration.NoChange, h.reportProviderError(ctx, status, fetchErr)
		}
		return registration.NoChange, fetchErr
	}
	if getErr != nil {
		return registration.NoChange, getErr
	}

	outcome, err := registration.DetectChange(previous, current)
	if err != nil {
		return registration.NoChange, err
	}
	if !outcome.Changed {
		return outcome, nil
	}

	var writes errgroup.Group
	var putErr, publishErr error
	writes.Go(func() error {
		putErr = h.Store.Put(ctx, h.Account, current)
		return nil
	})
	writes.Go(func() error {
		publishErr = h.Notifier.Publish(ctx, outcome.Message)
		return nil
	})
	_ = writes.Wait()

	if err := errors.Join(putErr, publishErr); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// reportProviderError tells subscribers that voip.ms refused the request
// (bad credentials, disabled API access) and still fails the invocation.
func (h *Handler) reportProviderError(ctx context.Context, status string, fetchErr error) error {
	h.Logger.Warn().Str("account", h.Account).Str("provider_status", status).Msg("voip.ms reported an error")

	if err := h.Notifier.Publish(ctx, "Error checking registration status: "+status); err != nil {
		return errors.Join(fetchErr, err)
	}
	return fetchErr
}
