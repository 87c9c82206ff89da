package staging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/buildlens/delivery-intake/internal/delivery"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix  = "DELIVERY#"
	skStaging = "STAGING"
)

// StagingTTL auto-deletes abandoned staged sets. A day covers any realistic
// gap between photographing invoices and confirming the intake.
const StagingTTL = 24 * time.Hour

// DynamoStore implements Store on DynamoDB so a staged set can be picked up
// on another device in the field. Keys follow DELIVERY#{id} / STAGING.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// stagingItem is the persisted shape: the staged record set plus keys/TTL.
type stagingItem struct {
	Records []delivery.MaterialRecord `dynamodbav:"records"`
}

func deliveryPK(id DeliveryID) string {
	return pkPrefix + string(id)
}

// Put stages records for a delivery, replacing any previous set.
func (s *DynamoStore) Put(ctx context.Context, id DeliveryID, records []delivery.MaterialRecord) error {
	item, err := attributevalue.MarshalMap(stagingItem{Records: records})
	if err != nil {
		return fmt.Errorf("marshal staged records: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: deliveryPK(id)}
	item["SK"] = &types.AttributeValueMemberS{Value: skStaging}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(StagingTTL).Unix(), 10),
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s: %w", deliveryPK(id), err)
	}

	log.Debug().Str("deliveryId", string(id)).Int("records", len(records)).Msg("Records staged to DynamoDB")
	return nil
}

// Get returns the staged records for a delivery, ok=false when none exist.
func (s *DynamoStore) Get(ctx context.Context, id DeliveryID) ([]delivery.MaterialRecord, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: deliveryPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skStaging},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("GetItem PK=%s: %w", deliveryPK(id), err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var item stagingItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, fmt.Errorf("unmarshal staged records: %w", err)
	}
	return item.Records, true, nil
}

// Clear removes the staged records for a delivery.
func (s *DynamoStore) Clear(ctx context.Context, id DeliveryID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: deliveryPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skStaging},
		},
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s: %w", deliveryPK(id), err)
	}
	return nil
}
