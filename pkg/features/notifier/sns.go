package notifier

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

const DefaultSubject = "Voip.ms registration status change"

type SnsApiClient interface {
	Publish(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes to a topic. Account is attached as the "account" message
// attribute so subscriptions can filter on it.
type SNS struct {
	SNSClient SnsApiClient
	TopicArn  string
	Subject   string
	Account   string
}

func (n *SNS) Publish(ctx context.Context, message string) error {
	subject := n.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.TopicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}
	if n.Account != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"account": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.Account),
			},
		}
	}

	if _, err := n.SNSClient.Publish(ctx, input); err != nil {
		return &errors.NotifyError{Channel: "sns", Err: err}
	}
	return nil
}
