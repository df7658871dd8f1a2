// Package voipms fetches account registration status from the voip.ms REST API.
package voipms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
	"github.com/nsutclif/voipms-monitor/pkg/features/registration"
)

const (
	DefaultBaseURL = "https://voip.ms/api/v1/rest.php"

	maxResponseBytes      = 1 << 20
	methodRegistration    = "getRegistrationStatus"
	providerStatusSuccess = "success"
)

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	BaseURL      string
	Username     string
	Password     string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       zerolog.Logger
}

// Client is a StatusSource backed by the voip.ms API.
type Client struct {
	baseURL  string
	username string
	password string
	client   *retryablehttp.Client
	logger   zerolog.Logger
}

// NewClient validates opts and builds a Client. Network errors and 5xx
// responses are retried up to RetryMax times.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if err := validateBaseURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("voip.ms api username and password are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	client.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			opts.Logger.Debug().Int("attempt", attempt).Str("method", methodRegistration).Msg("retrying voip.ms request")
		}
	}

	return &Client{
		baseURL:  opts.BaseURL,
		username: opts.Username,
		password: opts.Password,
		client:   client,
		logger:   opts.Logger,
	}, nil
}

func validateBaseURL(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid voip.ms base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid voip.ms base url %q: scheme must be http or https", value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid voip.ms base url %q: must include host", value)
	}
	return nil
}

type registrationStatusResponse struct {
	Status        string                 `json:"status"`
	Registered    string                 `json:"registered"`
	Registrations []registrationResponse `json:"registrations"`
}

// Only server_shortname and register_ip are kept; the rest is listed to
// document the payload.
type registrationResponse struct {
	ServerName      string `json:"server_name"`
	ServerShortName string `json:"server_shortname"`
	ServerHostname  string `json:"server_hostname"`
	ServerIP        string `json:"server_ip"`
	ServerCountry   string `json:"server_country"`
	ServerPop       string `json:"server_pop"`
	RegisterIP      string `json:"register_ip"`
	RegisterPort    string `json:"register_port"`
	RegisterNext    string `json:"register_next"`
}

// Fetch returns the current registration status of account. Every failure is
// a *errors.FetchError; provider-side failures carry an *errors.ProviderError
// and inconsistent payloads match errors.ErrMalformedStatus.
func (c *Client) Fetch(ctx context.Context, account string) (registration.RegistrationStatus, error) {
	status, err := c.fetch(ctx, account)
	if err != nil {
		return registration.RegistrationStatus{}, &errors.FetchError{Account: account, Err: err}
	}
	return status, nil
}

func (c *Client) fetch(ctx context.Context, account string) (registration.RegistrationStatus, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(account), nil)
	if err != nil {
		return registration.RegistrationStatus{}, c.redact(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return registration.RegistrationStatus{}, c.redact(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return registration.RegistrationStatus{}, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return registration.RegistrationStatus{}, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return registration.RegistrationStatus{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var payload registrationStatusResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return registration.RegistrationStatus{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug().
		Str("account", account).
		Str("status", payload.Status).
		Str("registered", payload.Registered).
		Int("registrations", len(payload.Registrations)).
		Msg("voip.ms registration status received")

	return toStatus(payload)
}

func (c *Client) requestURL(account string) string {
	query := url.Values{}
	query.Set("api_username", c.username)
	query.Set("api_password", c.password)
	query.Set("method", methodRegistration)
	query.Set("account", account)

	base := c.baseURL
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + query.Encode()
}

// toStatus validates the provider payload and keeps only the fields change
// detection looks at.
func toStatus(payload registrationStatusResponse) (registration.RegistrationStatus, error) {
	if payload.Status != providerStatusSuccess {
		if payload.Status == "" {
			return registration.RegistrationStatus{}, errors.Malformed("response has no status")
		}
		return registration.RegistrationStatus{}, &errors.ProviderError{Status: payload.Status}
	}

	var status registration.RegistrationStatus
	switch strings.ToLower(strings.TrimSpace(payload.Registered)) {
	case "yes":
		status.Registered = true
	case "no":
		status.Registered = false
	default:
		return registration.RegistrationStatus{}, errors.Malformed("registered flag %q", payload.Registered)
	}

	for i, entry := range payload.Registrations {
		if strings.TrimSpace(entry.RegisterIP) == "" {
			return registration.RegistrationStatus{}, errors.Malformed("registration %d has no register_ip", i)
		}
		status.Registrations = append(status.Registrations, registration.RegistrationEntry{
			ServerShortName: entry.ServerShortName,
			RegisterIP:      entry.RegisterIP,
		})
	}

	if err := status.Validate(); err != nil {
		return registration.RegistrationStatus{}, err
	}
	return status, nil
}

// redactedError hides the api password that net/http embeds in URL errors.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func (c *Client) redact(err error) error {
	msg := err.Error()
	for _, secret := range []string{url.QueryEscape(c.password), c.password} {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "REDACTED")
		}
	}
	return &redactedError{msg: msg, err: err}
}
