package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

type mockSns struct {
	PublishError error
	input        *sns.PublishInput
}

func (m *mockSns) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = input
	return &sns.PublishOutput{MessageId: aws.String("1")}, m.PublishError
}

func TestSNSPublish(t *testing.T) {
	testCases := []struct {
		name            string
		subject         string
		account         string
		expectedSubject string
		publishError    error
	}{
		{
			name:            "default subject",
			account:         "100000_home",
			expectedSubject: DefaultSubject,
		},
		{
			name:            "custom subject without account",
			subject:         "VoIP alert",
			expectedSubject: "VoIP alert",
		},
		{
			name:            "publish error",
			account:         "100000_home",
			expectedSubject: DefaultSubject,
			publishError:    errors.New("topic not found"),
		},
	}

	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			client := &mockSns{PublishError: tC.publishError}
			n := SNS{SNSClient: client, TopicArn: "arn:aws:sns:us-west-2:123456789012:status", Subject: tC.subject, Account: tC.account}

			err := n.Publish(context.Background(), "No longer registered.")

			if tC.publishError != nil {
				var notifyErr *errors.NotifyError
				if !errors.As(err, &notifyErr) || notifyErr.Channel != "sns" {
					t.Fatalf("Received error: %v is different than expected NotifyError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Error occured when publishing: %v", err)
			}

			if aws.ToString(client.input.Message) != "No longer registered." {
				t.Errorf("Received message: %v is different than expected one", aws.ToString(client.input.Message))
			}
			if aws.ToString(client.input.Subject) != tC.expectedSubject {
				t.Errorf("Received subject: %v is different than expected one: %v", aws.ToString(client.input.Subject), tC.expectedSubject)
			}
			if aws.ToString(client.input.TopicArn) != "arn:aws:sns:us-west-2:123456789012:status" {
				t.Errorf("Received topic: %v is different than expected one", aws.ToString(client.input.TopicArn))
			}
			attr, ok := client.input.MessageAttributes["account"]
			if tC.account == "" && ok {
				t.Errorf("Expected no account attribute")
			}
			if tC.account != "" && aws.ToString(attr.StringValue) != tC.account {
				t.Errorf("Received account attribute: %v is different than expected one: %v", aws.ToString(attr.StringValue), tC.account)
			}
		})
	}
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Publish(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	first := &recordingNotifier{err: errors.New("first failed")}
	second := &recordingNotifier{}

	err := NewMulti(first, nil, second).Publish(context.Background(), "hello")

	if err == nil || err.Error() != "first failed" {
		t.Errorf("Received error: %v is different than expected one: first failed", err)
	}
	if len(first.messages) != 1 || len(second.messages) != 1 {
		t.Errorf("Expected every notifier to be attempted, got %d and %d", len(first.messages), len(second.messages))
	}
}

func TestNewSlackWithoutWebhookIsNoop(t *testing.T) {
	n := NewSlack(zerolog.Nop(), "", "", "100000_home")
	if _, ok := n.(Noop); !ok {
		t.Fatalf("Expected Noop notifier, got %T", n)
	}
	if err := n.Publish(context.Background(), "ignored"); err != nil {
		t.Errorf("Noop returned error: %v", err)
	}
}

func fastSlack(url string) Notifier {
	return NewSlack(zerolog.New(io.Discard), url, "", "100000_home",
		WithSlackTiming(time.Millisecond, time.Millisecond, 5*time.Millisecond, 200*time.Millisecond),
	)
}

func TestSlackPublishPayload(t *testing.T) {
	payloads := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Unexpected content type %q", r.Header.Get("Content-Type"))
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		payloads <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := fastSlack(server.URL).Publish(context.Background(), "Newly registered at 1.2.3.4"); err != nil {
		t.Fatalf("Error occured when publishing: %v", err)
	}

	received := <-payloads
	text, _ := received["text"].(string)
	if text != DefaultSubject+": Newly registered at 1.2.3.4" {
		t.Errorf("Received text: %q is different than expected one", text)
	}
	blocks, _ := received["blocks"].([]any)
	if len(blocks) != 3 {
		t.Errorf("Expected 3 blocks, got %d", len(blocks))
	}
}

func TestSlackRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := fastSlack(server.URL).Publish(context.Background(), "hello"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSlackDoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	defer server.Close()

	err := fastSlack(server.URL).Publish(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "invalid_payload") {
		t.Fatalf("expected client error with body, got %v", err)
	}
	var notifyErr *errors.NotifyError
	if !errors.As(err, &notifyErr) || notifyErr.Channel != "slack" {
		t.Fatalf("expected slack NotifyError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestSlackHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlack(zerolog.Nop(), server.URL, "", "100000_home",
		WithSlackTiming(time.Millisecond, time.Millisecond, 5*time.Millisecond, 5*time.Second),
	)

	start := time.Now()
	if err := n.Publish(context.Background(), "hello"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("expected to wait for Retry-After, waited %s", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestSlackRetryAfterBeyondBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := fastSlack(server.URL).Publish(context.Background(), "hello")

	var retryAfterErr *retryAfterError
	if !errors.As(err, &retryAfterErr) {
		t.Fatalf("expected retry-after error, got %v", err)
	}
	if retryAfterErr.Duration != time.Second {
		t.Errorf("expected 1s retry-after, got %s", retryAfterErr.Duration)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{name: "seconds", value: "3", expected: 3 * time.Second, ok: true},
		{name: "empty", value: ""},
		{name: "zero", value: "0"},
		{name: "negative", value: "-5"},
		{name: "garbage", value: "soon"},
		{name: "past date", value: "Wed, 21 Oct 2015 07:28:00 GMT"},
	}

	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			wait, ok := parseRetryAfter(tC.value)
			if ok != tC.ok || wait != tC.expected {
				t.Errorf("Received (%s, %v) is different than expected (%s, %v)", wait, ok, tC.expected, tC.ok)
			}
		})
	}

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if wait, ok := parseRetryAfter(future); !ok || wait <= 50*time.Minute {
		t.Errorf("Received (%s, %v) for a date an hour ahead", wait, ok)
	}
}

func TestMultiJoinsAllErrors(t *testing.T) {
	snsErr := errors.New("sns failed")
	slackErr := errors.New("slack failed")
	first := &recordingNotifier{err: snsErr}
	second := &recordingNotifier{err: slackErr}

	err := NewMulti(first, second).Publish(context.Background(), "hello")

	if !errors.Is(err, snsErr) || !errors.Is(err, slackErr) {
		t.Errorf("Received error: %v should carry both notifier errors", err)
	}
}
