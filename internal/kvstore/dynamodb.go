package kvstore

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

// maxBatchSize is the BatchWriteItem request limit.
const maxBatchSize = 25

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBKVStore implements the core.KVStore interface using AWS DynamoDB.
// Items are {key S, value B, created_at S, ttl N}; expired items read as
// missing even before DynamoDB's TTL sweeper removed them.
type DynamoDBKVStore struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
	closed    bool
}

// NewDynamoDBKVStore loads the AWS configuration for cfg's region, checks
// that the table exists and returns the store.
func NewDynamoDBKVStore(cfg registry.DynamoDBConfig, dialTimeout time.Duration) (*DynamoDBKVStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Static credentials override the default chain (LocalStack, CI).
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, opts...)

	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(cfg.TableName),
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.TableName, err)
	}

	log.Printf("[DYNAMODB] Connected to table %s in %s", cfg.TableName, cfg.Region)
	return NewDynamoDBKVStoreWithClient(client, cfg.TableName), nil
}

// NewDynamoDBKVStoreWithClient wraps an existing client.
func NewDynamoDBKVStoreWithClient(client DynamoDBAPI, tableName string) *DynamoDBKVStore {
	return &DynamoDBKVStore{client: client, tableName: tableName, now: time.Now}
}

func (d *DynamoDBKVStore) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoDBKVStore) item(key string, value []byte, ttl time.Duration) map[string]types.AttributeValue {
	now := d.now()
	item := map[string]types.AttributeValue{
		"key":        &types.AttributeValueMemberS{Value: key},
		"value":      &types.AttributeValueMemberB{Value: value},
		"created_at": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
	}
	if ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).Unix(), 10)}
	}
	return item
}

// expired reports whether the item carries a ttl in the past.
func (d *DynamoDBKVStore) expired(item map[string]types.AttributeValue) bool {
	attr, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return false
	}
	return d.now().Unix() > ttl
}

// Get retrieves a value by key from the store.
func (d *DynamoDBKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if d.closed {
		return nil, fmt.Errorf("KV store is closed")
	}

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyAttr(key),
	})
	if err != nil {
		log.Printf("[DYNAMODB] ERROR: Failed to get key %s: %v", key, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil || d.expired(result.Item) {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}

	valueMember, ok := result.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		log.Printf("[DYNAMODB] WARNING: Key %s found but value is not binary", key)
		return nil, fmt.Errorf("invalid value format for key %s", key)
	}
	return valueMember.Value, nil
}

// Set stores a key-value pair with an optional TTL.
func (d *DynamoDBKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.closed {
		return fmt.Errorf("KV store is closed")
	}

	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.item(key, value, ttl),
	}); err != nil {
		log.Printf("[DYNAMODB] ERROR: Failed to set key %s: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	log.Printf("[DYNAMODB] PUT %s (%d bytes, ttl %v)", key, len(value), ttl)
	return nil
}

// Delete removes a key from the store.
func (d *DynamoDBKVStore) Delete(ctx context.Context, key string) error {
	if d.closed {
		return fmt.Errorf("KV store is closed")
	}

	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyAttr(key),
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in the store.
func (d *DynamoDBKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if d.closed {
		return false, fmt.Errorf("KV store is closed")
	}

	// "key" and "ttl" are reserved words in DynamoDB expressions.
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.keyAttr(key),
		ProjectionExpression:     aws.String("#k, #t"),
		ExpressionAttributeNames: map[string]string{"#k": "key", "#t": "ttl"},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return result.Item != nil && !d.expired(result.Item), nil
}

// BatchSet stores multiple key-value pairs with a shared TTL in chunks of
// 25 items. DynamoDB does not make the chunks atomic.
func (d *DynamoDBKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if d.closed {
		return fmt.Errorf("KV store is closed")
	}
	if len(items) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for key, value := range items {
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: d.item(key, value, ttl)},
		})
	}

	for i := 0; i < len(requests); i += maxBatchSize {
		end := min(i+maxBatchSize, len(requests))
		out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				d.tableName: requests[i:end],
			},
		})
		if err != nil {
			return fmt.Errorf("failed to batch set keys: %w", err)
		}
		if out != nil && len(out.UnprocessedItems[d.tableName]) > 0 {
			return fmt.Errorf("failed to batch set keys: %d items unprocessed", len(out.UnprocessedItems[d.tableName]))
		}
	}
	return nil
}

// Close marks the store closed. The SDK client holds no connection to release.
func (d *DynamoDBKVStore) Close() error {
	d.closed = true
	return nil
}

// DynamoDBKVStoreFactory creates DynamoDB KV stores.
type DynamoDBKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *DynamoDBKVStoreFactory) Type() string {
	return "dynamodb"
}

// Create creates a new DynamoDB KV store instance based on the provided configuration.
func (f *DynamoDBKVStoreFactory) Create(config registry.KVStoreConfig) (core.KVStore, error) {
	store, err := NewDynamoDBKVStore(config.DynamoDBConfig, config.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB KV store: %w", err)
	}
	return store, nil
}

// DynamoDBConfigValidator validates the dynamodb section of a KV store config.
type DynamoDBConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *DynamoDBConfigValidator) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB-specific configuration.
func (v *DynamoDBConfigValidator) Validate(config *registry.KVStoreConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB validator: %s", config.Type)
	}

	dynamoConfig := config.DynamoDBConfig
	if dynamoConfig.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if dynamoConfig.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	if (dynamoConfig.AccessKeyID == "") != (dynamoConfig.SecretAccessKey == "") {
		return fmt.Errorf("access_key_id and secret_access_key must be set together")
	}
	return validateTimeouts(config)
}

func init() {
	RegisterFactory(&DynamoDBKVStoreFactory{})
	registry.RegisterValidator(&DynamoDBConfigValidator{})
}
