// Command poll-once runs a single registration poll against the configured
// table and topic, reading settings from the environment or a local .env.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/nsutclif/voipms-monitor/pkg/features/config"
	"github.com/nsutclif/voipms-monitor/pkg/features/logging"
	registrationpoller "github.com/nsutclif/voipms-monitor/pkg/handlers/registration-poller"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := newHandler(ctx, uuid.NewString())
	if err != nil {
		logger := logging.New()
		logger.Error().Err(err).Msg("failed to start registration poll")
		return 1
	}

	outcome, err := handler.Poll(ctx)
	if err != nil {
		handler.Logger.Error().Err(err).Msg("registration poll failed")
		return 1
	}
	handler.Logger.Info().Bool("changed", outcome.Changed).Str("message", outcome.Message).Msg("registration poll finished")
	return 0
}

func newHandler(ctx context.Context, runID string) (*registrationpoller.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewWithLevel(cfg.LogLevel).With().
		Str("run_id", runID).
		Str("account", cfg.Account).
		Logger()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return registrationpoller.NewFromConfig(cfg, awsCfg, logger)
}
