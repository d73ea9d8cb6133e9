package persist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Single-table key layout.
const (
	pkPrefix  = "WORKSPACE#"
	skHistory = "HISTORY"
)

// DefaultTTL is how long a saved workspace history is kept in DynamoDB.
const DefaultTTL = 30 * 24 * time.Hour

// DynamoAPI is the subset of *dynamodb.Client used by DynamoSink.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// historyItem is the non-key part of the stored item.
type historyItem struct {
	Payload   []byte `dynamodbav:"payload"`
	SavedAt   string `dynamodbav:"savedAt"`
	SizeBytes int    `dynamodbav:"sizeBytes"`
}

// DynamoSink stores each blob as one item keyed PK=WORKSPACE#<name>, SK=HISTORY.
type DynamoSink struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoSink creates a sink for tableName. A zero ttl selects DefaultTTL.
func NewDynamoSink(client DynamoAPI, tableName string, ttl time.Duration) *DynamoSink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoSink{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

func workspaceKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + name},
		"SK": &types.AttributeValueMemberS{Value: skHistory},
	}
}

// Save writes data with an expiresAt TTL attribute.
func (s *DynamoSink) Save(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	now := s.now()
	item, err := attributevalue.MarshalMap(historyItem{
		Payload:   data,
		SavedAt:   now.UTC().Format(time.RFC3339),
		SizeBytes: len(data),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	for k, v := range workspaceKey(name) {
		item[k] = v
	}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttl).Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s%s SK=%s: %w", pkPrefix, name, skHistory, err)
	}
	return nil
}

// Load reads the item saved under name.
func (s *DynamoSink) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       workspaceKey(name),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s%s SK=%s: %w", pkPrefix, name, skHistory, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var item historyItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s%s: %w", pkPrefix, name, err)
	}
	return item.Payload, nil
}
