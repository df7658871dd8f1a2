package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/nsutclif/voipms-monitor/pkg/features/config"
	"github.com/nsutclif/voipms-monitor/pkg/features/logging"
	registrationpoller "github.com/nsutclif/voipms-monitor/pkg/handlers/registration-poller"
)

func newHandler(ctx context.Context) (*registrationpoller.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewWithLevel(cfg.LogLevel).With().
		Str("function", "registration-poller").
		Str("account", cfg.Account).
		Logger()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return registrationpoller.NewFromConfig(cfg, awsCfg, logger)
}

func main() {
	handler, err := newHandler(context.Background())
	if err != nil {
		logger := logging.New()
		logger.Error().Err(err).Msg("failed to start registration poller")
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}
