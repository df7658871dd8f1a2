package main

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	golambda "github.com/aws/aws-cdk-go/awscdklambdagoalpha/v2"
)

const defaultPollMinutes = 5

type MonitorStackProps struct {
	awscdk.StackProps
	// voip.ms API credentials and the sub-account to watch, taken from CDK context.
	APIUsername string
	APIPassword string
	Account     string
	PollMinutes float64
	// Optional; empty disables Slack notifications.
	SlackWebhookURL string
}

func NewMonitorStack(scope constructs.Construct, id string, props *MonitorStackProps) awscdk.Stack {
	if props == nil {
		props = &MonitorStackProps{}
	}
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	pollMinutes := props.PollMinutes
	if pollMinutes <= 0 {
		pollMinutes = defaultPollMinutes
	}

	bundlingOptions := &golambda.BundlingOptions{
		GoBuildFlags: jsii.Strings(`-ldflags "-s -w"`),
		Environment: &map[string]*string{
			"CGO_ENABLED": jsii.String("0"),
		},
	}

	// Snapshot table, one item per voip.ms account

	statusTable := awsdynamodb.NewTable(stack, jsii.String("AccountRegistrationStatus"), &awsdynamodb.TableProps{
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("account"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	statusTopic := awssns.NewTopic(stack, jsii.String("RegistrationStatusChange"), &awssns.TopicProps{
		EnforceSSL:  jsii.Bool(true),
		DisplayName: jsii.String("Voip.ms registration status"),
	})

	environment := map[string]*string{
		"VOIPMS_API_USERNAME":                    jsii.String(props.APIUsername),
		"VOIPMS_API_PASSWORD":                    jsii.String(props.APIPassword),
		"VOIPMS_ACCOUNT":                         jsii.String(props.Account),
		"ACCOUNT_REGISTRATION_STATUS_TABLE_NAME": statusTable.TableName(),
		"REGISTRATION_STATUS_CHANGE_TOPIC":       statusTopic.TopicArn(),
	}
	if props.SlackWebhookURL != "" {
		environment["SLACK_WEBHOOK_URL"] = jsii.String(props.SlackWebhookURL)
	}

	pollerLambda := golambda.NewGoFunction(stack, jsii.String("RegistrationPoller"), &golambda.GoFunctionProps{
		Entry:        jsii.String("lambdas/registration-poller"),
		Runtime:      awslambda.Runtime_PROVIDED_AL2(),
		Architecture: awslambda.Architecture_ARM_64(),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(60)),
		Environment:  &environment,
		Bundling:     bundlingOptions,
	})
	pollerLambda.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("dynamodb:GetItem", "dynamodb:PutItem"),
		Resources: jsii.Strings(*statusTable.TableArn()),
	}))
	pollerLambda.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("sns:Publish"),
		Resources: jsii.Strings(*statusTopic.TopicArn()),
	}))

	// Polling schedule

	pollRule := awsevents.NewRule(stack, jsii.String("RegistrationPollSchedule"), &awsevents.RuleProps{
		Schedule: awsevents.Schedule_Rate(awscdk.Duration_Minutes(jsii.Number(pollMinutes))),
	})
	pollRule.AddTarget(awseventstargets.NewLambdaFunction(pollerLambda, &awseventstargets.LambdaFunctionProps{
		RetryAttempts: jsii.Number(0),
	}))

	awscdk.NewCfnOutput(stack, jsii.String("TopicArn"), &awscdk.CfnOutputProps{
		Value:       statusTopic.TopicArn(),
		Description: jsii.String("Subscribe to this topic to receive registration change notifications"),
	})

	return stack
}

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	props := &MonitorStackProps{
		StackProps: awscdk.StackProps{
			Env: env(),
		},
		APIUsername:     contextString(app, "voipmsApiUsername"),
		APIPassword:     contextString(app, "voipmsApiPassword"),
		Account:         contextString(app, "voipmsAccount"),
		SlackWebhookURL: contextString(app, "slackWebhookUrl"),
	}
	// -c on the command line yields strings; cdk.json yields numbers.
	switch minutes := app.Node().TryGetContext(jsii.String("pollMinutes")).(type) {
	case float64:
		props.PollMinutes = minutes
	case string:
		if parsed, err := strconv.ParseFloat(minutes, 64); err == nil {
			props.PollMinutes = parsed
		}
	}

	for key, value := range map[string]string{
		"voipmsApiUsername": props.APIUsername,
		"voipmsApiPassword": props.APIPassword,
		"voipmsAccount":     props.Account,
	} {
		if value == "" {
			panic(fmt.Sprintf("missing CDK context value %q (pass -c %s=...)", key, key))
		}
	}

	NewMonitorStack(app, "VoipMsMonitorStack", props)

	app.Synth(nil)
}

func contextString(app awscdk.App, key string) string {
	value, _ := app.Node().TryGetContext(jsii.String(key)).(string)
	return value
}

func env() *awscdk.Environment {
	return nil
}
