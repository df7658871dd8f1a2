package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

const httpErrorBodyLimit = 1024

type slackTiming struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMaxElapsed time.Duration
}

var defaultSlackTiming = slackTiming{
	timeout:           10 * time.Second,
	rateInterval:      1 * time.Second,
	rateBurst:         1,
	backoffInitial:    1 * time.Second,
	backoffMax:        5 * time.Second,
	backoffMaxElapsed: 20 * time.Second,
}

// Slack posts messages to an incoming webhook.
type Slack struct {
	logger     zerolog.Logger
	webhookURL string
	account    string
	subject    string
	timing     slackTiming
	client     *retryablehttp.Client
	limiter    *rate.Limiter
}

// SlackOption customizes Slack behavior.
type SlackOption func(*Slack)

// WithSlackTiming overrides rate limiting and retry timing (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *Slack) {
		s.timing.rateInterval = rateInterval
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlack returns a Slack notifier, or a Noop when webhookURL is empty.
func NewSlack(logger zerolog.Logger, webhookURL, subject, account string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; slack notifications disabled")
	}
	if subject == "" {
		subject = DefaultSubject
	}

	n := &Slack{
		logger:     logger,
		webhookURL: webhookURL,
		account:    account,
		subject:    subject,
		timing:     defaultSlackTiming,
	}
	for _, opt := range opts {
		opt(n)
	}

	// Retries are driven by postWithRetry so 429 and 5xx share one backoff budget.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: n.timing.timeout}
	n.client = client
	n.limiter = rate.NewLimiter(rate.Every(n.timing.rateInterval), n.timing.rateBurst)

	return n
}

func (n *Slack) Publish(ctx context.Context, message string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return &errors.NotifyError{Channel: "slack", Err: err}
	}

	payload, err := json.Marshal(buildSlackMessage(n.subject, n.account, message))
	if err != nil {
		return &errors.NotifyError{Channel: "slack", Err: fmt.Errorf("marshal slack payload: %w", err)}
	}
	if err := n.postWithRetry(ctx, payload); err != nil {
		return &errors.NotifyError{Channel: "slack", Err: err}
	}

	n.logger.Debug().Str("account", n.account).Msg("slack notification sent")
	return nil
}

func buildSlackMessage(subject, account, message string) slack.WebhookMessage {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", subject, false, false))
	blocks := []slack.Block{header}
	if account != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Account: *%s*", account), false, false),
		))
	}
	blocks = append(blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", "```"+message+"```", false, false), nil, nil,
	))

	return slack.WebhookMessage{
		Text:   subject + ": " + message,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

// postWithRetry retries retryable failures on an exponential schedule. A 429
// carrying Retry-After waits the requested time instead, as long as that
// stays within the overall retry budget.
func (n *Slack) postWithRetry(ctx context.Context, payload []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.timing.backoffInitial
	b.MaxInterval = n.timing.backoffMax
	b.MaxElapsedTime = n.timing.backoffMaxElapsed
	b.Reset()

	for {
		err := n.postOnce(ctx, payload)
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}

		wait := b.NextBackOff()
		var retryAfter *retryAfterError
		if errors.As(err, &retryAfter) {
			if b.MaxElapsedTime > 0 && b.GetElapsedTime()+retryAfter.Duration > b.MaxElapsedTime {
				return err
			}
			wait = retryAfter.Duration
		}
		if wait == backoff.Stop {
			return err
		}
		if !sleepWithContext(ctx, wait) {
			return errors.Join(ctx.Err(), err)
		}
	}
}

// postOnce wraps non-retryable failures in backoff.Permanent.
func (n *Slack) postOnce(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, n.timing.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build slack request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
	bodyText := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return &retryAfterError{Duration: wait, err: fmt.Errorf("slack rate limited: %s", resp.Status)}
		}
		return fmt.Errorf("slack rate limited: %s", resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("slack server error: %s", resp.Status)
	case bodyText != "":
		return backoff.Permanent(fmt.Errorf("slack request failed: %s (%s)", resp.Status, bodyText))
	default:
		return backoff.Permanent(fmt.Errorf("slack request failed: %s", resp.Status))
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		wait := time.Until(when)
		if wait <= 0 {
			return 0, false
		}
		return wait, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("%v; retry after %s", e.err, e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
