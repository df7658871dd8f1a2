package registrationpoller

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/nsutclif/voipms-monitor/pkg/features/config"
	"github.com/nsutclif/voipms-monitor/pkg/features/notifier"
	"github.com/nsutclif/voipms-monitor/pkg/features/snapshotstore"
	"github.com/nsutclif/voipms-monitor/pkg/features/voipms"
)

// NewFromConfig builds a Handler backed by voip.ms, a DynamoDB snapshot table
// and SNS, plus Slack when a webhook is configured.
func NewFromConfig(cfg config.Config, awsCfg aws.Config, logger zerolog.Logger) (*Handler, error) {
	source, err := voipms.NewClient(voipms.Options{
		BaseURL:  cfg.APIURL,
		Username: cfg.APIUsername,
		Password: cfg.APIPassword,
		Timeout:  cfg.HTTPTimeout,
		RetryMax: cfg.HTTPRetryMax,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Handler{
		Account: cfg.Account,
		Source:  source,
		Store: &snapshotstore.Store{
			DynamoClient: dynamodb.NewFromConfig(awsCfg),
			TableName:    cfg.TableName,
		},
		Notifier: notifier.NewMulti(
			&notifier.SNS{
				SNSClient: sns.NewFromConfig(awsCfg),
				TopicArn:  cfg.TopicArn,
				Subject:   cfg.Subject,
				Account:   cfg.Account,
			},
			notifier.NewSlack(logger, cfg.SlackWebhookURL, cfg.Subject, cfg.Account),
		),
		Logger: logger,
	}, nil
}
