// Package config loads poller settings from the environment, optionally seeded
// from a local .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envAPIUsername  = "VOIPMS_API_USERNAME"
	envAPIPassword  = "VOIPMS_API_PASSWORD"
	envAccount      = "VOIPMS_ACCOUNT"
	envAPIURL       = "VOIPMS_API_URL"
	envHTTPTimeout  = "VOIPMS_HTTP_TIMEOUT"
	envHTTPRetryMax = "VOIPMS_HTTP_RETRY_MAX"
	envTableName    = "ACCOUNT_REGISTRATION_STATUS_TABLE_NAME"
	envTopicArn     = "REGISTRATION_STATUS_CHANGE_TOPIC"
	envSubject      = "NOTIFICATION_SUBJECT"
	envSlackWebhook = "SLACK_WEBHOOK_URL"
	envLogLevel     = "LOG_LEVEL"
)

const (
	defaultAPIURL       = "https://voip.ms/api/v1/rest.php"
	defaultHTTPTimeout  = 10 * time.Second
	defaultHTTPRetryMax = 2
	defaultSubject      = "Voip.ms registration status change"
	defaultLogLevel     = "info"
)

// Config is built once at process start and handed to the collaborators.
type Config struct {
	APIUsername     string
	APIPassword     string
	Account         string
	APIURL          string
	HTTPTimeout     time.Duration
	HTTPRetryMax    int
	TableName       string
	TopicArn        string
	Subject         string
	SlackWebhookURL string
	LogLevel        string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIURL:       defaultAPIURL,
		HTTPTimeout:  defaultHTTPTimeout,
		HTTPRetryMax: defaultHTTPRetryMax,
		Subject:      defaultSubject,
		LogLevel:     defaultLogLevel,
	}

	required := []struct {
		key   string
		field *string
	}{
		{envAPIUsername, &cfg.APIUsername},
		{envAPIPassword, &cfg.APIPassword},
		{envAccount, &cfg.Account},
		{envTableName, &cfg.TableName},
		{envTopicArn, &cfg.TopicArn},
	}
	for _, r := range required {
		value, ok := lookupTrimmed(r.key)
		if !ok || value == "" {
			return Config{}, fmt.Errorf("%s is required", r.key)
		}
		*r.field = value
	}

	if value, ok := lookupTrimmed(envAPIURL); ok && value != "" {
		cfg.APIURL = value
	}
	if err := validateURL(cfg.APIURL, envAPIURL); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envHTTPTimeout); ok && value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envHTTPTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envHTTPTimeout)
		}
		cfg.HTTPTimeout = timeout
	}

	if value, ok := lookupTrimmed(envHTTPRetryMax); ok && value != "" {
		retryMax, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envHTTPRetryMax, err)
		}
		if retryMax < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", envHTTPRetryMax)
		}
		cfg.HTTPRetryMax = retryMax
	}

	if value, ok := lookupTrimmed(envSubject); ok && value != "" {
		cfg.Subject = value
	}

	if value, ok := lookupTrimmed(envSlackWebhook); ok && value != "" {
		if err := validateURL(value, envSlackWebhook); err != nil {
			return Config{}, err
		}
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include host", name)
	}
	return nil
}
