package dynamomapper

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nsutclif/voipms-monitor/pkg/features/registration"
)

// AccountKey is the partition key attribute of the snapshot table.
const AccountKey = "account"

type registrationRecord struct {
	ServerShortName string `dynamodbav:"server_shortname"`
	RegisterIP      string `dynamodbav:"register_ip"`
}

type snapshotRecord struct {
	Account       string               `dynamodbav:"account"`
	Registered    bool                 `dynamodbav:"registered"`
	Registrations []registrationRecord `dynamodbav:"registrations"`
	UpdatedAt     string               `dynamodbav:"updated_at,omitempty"`
}

// KeyFor returns the primary key of the snapshot item for account.
func KeyFor(account string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AccountKey: &types.AttributeValueMemberS{Value: account},
	}
}

// StatusToItem encodes a snapshot as a DynamoDB item.
func StatusToItem(account string, status registration.RegistrationStatus, updatedAt time.Time) (map[string]types.AttributeValue, error) {
	record := snapshotRecord{
		Account:       account,
		Registered:    status.Registered,
		Registrations: make([]registrationRecord, 0, len(status.Registrations)),
	}
	if !updatedAt.IsZero() {
		record.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	}
	for _, entry := range status.Registrations {
		record.Registrations = append(record.Registrations, registrationRecord{
			ServerShortName: entry.ServerShortName,
			RegisterIP:      entry.RegisterIP,
		})
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return item, nil
}

// ItemToStatus decodes a snapshot item. Attributes other than the registration
// fields are ignored.
func ItemToStatus(item map[string]types.AttributeValue) (registration.RegistrationStatus, error) {
	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return registration.RegistrationStatus{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	status := registration.RegistrationStatus{Registered: record.Registered}
	for _, entry := range record.Registrations {
		status.Registrations = append(status.Registrations, registration.RegistrationEntry{
			ServerShortName: entry.ServerShortName,
			RegisterIP:      entry.RegisterIP,
		})
	}
	return status, nil
}
