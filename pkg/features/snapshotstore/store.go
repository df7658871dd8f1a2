// Package snapshotstore keeps the last reported registration status of each
// account in a DynamoDB table keyed by account id.
package snapshotstore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/nsutclif/voipms-monitor/pkg/features/dynamomapper"
	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
	"github.com/nsutclif/voipms-monitor/pkg/features/registration"
)

type DynamoApiClient interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type Store struct {
	DynamoClient DynamoApiClient
	TableName    string
	// Now stamps updated_at on writes; defaults to time.Now.
	Now func() time.Time
}

// Get returns the stored snapshot for account, or nil when none was saved yet.
func (s *Store) Get(ctx context.Context, account string) (*registration.RegistrationStatus, error) {
	res, err := s.DynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TableName),
		Key:            dynamomapper.KeyFor(account),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &errors.StoreError{Account: account, Op: "get", Err: err}
	}
	if res == nil || len(res.Item) == 0 {
		return nil, nil
	}

	status, err := dynamomapper.ItemToStatus(res.Item)
	if err != nil {
		return nil, &errors.StoreError{Account: account, Op: "get", Err: err}
	}
	return &status, nil
}

// Put overwrites the snapshot for account. Concurrent writers race with
// last-write-wins semantics.
func (s *Store) Put(ctx context.Context, account string, status registration.RegistrationStatus) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	item, err := dynamomapper.StatusToItem(account, status, now())
	if err != nil {
		return &errors.StoreError{Account: account, Op: "put", Err: err}
	}

	if _, err := s.DynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.TableName),
		Item:      item,
	}); err != nil {
		return &errors.StoreError{Account: account, Op: "put", Err: err}
	}
	return nil
}
