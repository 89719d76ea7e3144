package kvstore

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

func newMiniRedisStore(t *testing.T) (*RedisKVStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisKVStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisKVStore(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))

	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, time.Minute, mr.TTL("b"))

	ok, err := store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.BatchSet(ctx, map[string][]byte{"x": []byte("X"), "y": []byte("Y")}, 0))
	got, err := mr.Get("y")
	require.NoError(t, err)
	assert.Equal(t, "Y", got)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.False(t, mr.Exists("a"))
}

func TestRedisKVStoreLists(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	ctx := context.Background()

	v, err := store.ListPop(ctx, "queue")
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, s := range []string{"1", "2", "3"} {
		require.NoError(t, store.ListPush(ctx, "queue", []byte(s)))
	}
	n, err := store.ListLength(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	v, err = store.ListPop(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	n, err = store.ListLength(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisKVStoreClosed(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "a")
	assert.ErrorContains(t, err, "closed")
	assert.Error(t, store.Set(context.Background(), "a", nil, 0))
}

func TestMemoryKVStore(t *testing.T) {
	store := NewMemoryKVStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	value := []byte("v")
	require.NoError(t, store.Set(ctx, "k", value, time.Second))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	assert.Zero(t, store.Len())

	require.NoError(t, store.BatchSet(ctx, map[string][]byte{"a": nil, "b": nil}, 0))
	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Close())
	_, err = store.Exists(ctx, "b")
	assert.Error(t, err)
}

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	batches int
	err     error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(attrs map[string]types.AttributeValue) string {
	return attrs["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batches++
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			f.items[keyOf(r.PutRequest.Item)] = r.PutRequest.Item
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func TestDynamoDBKVStore(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoDBKVStoreWithClient(fake, "xtc-links")
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	ttl := fake.items["a"]["ttl"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, strconv.FormatInt(now.Add(time.Minute).Unix(), 10), ttl)

	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	items := make(map[string][]byte)
	for i := 0; i < 30; i++ {
		items["k"+strconv.Itoa(i)] = []byte{byte(i)}
	}
	require.NoError(t, store.BatchSet(ctx, items, 0))
	assert.Equal(t, 2, fake.batches)
	_, hasTTL := fake.items["k0"]["ttl"]
	assert.False(t, hasTTL)

	require.NoError(t, store.Delete(ctx, "k0"))
	ok, err = store.Exists(ctx, "k0")
	require.NoError(t, err)
	assert.False(t, ok)

	fake.err = errors.New("throttled")
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, fake.err)
	assert.NotErrorIs(t, err, core.ErrKeyNotFound)
}

func validRedisConfig(addr string) registry.KVStoreConfig {
	return registry.KVStoreConfig{
		Type: "redis",
		RedisConfig: registry.RedisConfig{
			Endpoints: []string{addr},
			PoolSize:  2,
		},
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func TestCreate(t *testing.T) {
	assert.Equal(t, []string{"dynamodb", "memory", "redis"}, GetRegisteredTypes())
	assert.True(t, IsTypeRegistered("memory"))

	store, err := Create(registry.KVStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryKVStore{}, store)

	_, err = Create(registry.KVStoreConfig{})
	assert.ErrorContains(t, err, "type is required")

	_, err = Create(registry.KVStoreConfig{Type: "etcd"})
	assert.ErrorContains(t, err, "unsupported KV store type: etcd")

	mr := miniredis.RunT(t)
	store, err = Create(validRedisConfig(mr.Addr()))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("k"))
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*registry.KVStoreConfig)
		wantErr string
	}{
		{"valid", func(c *registry.KVStoreConfig) {}, ""},
		{"no endpoints", func(c *registry.KVStoreConfig) { c.RedisConfig.Endpoints = nil }, "at least one endpoint"},
		{"cluster", func(c *registry.KVStoreConfig) { c.RedisConfig.ClusterMode = true }, "cluster_mode"},
		{"db range", func(c *registry.KVStoreConfig) { c.RedisConfig.DB = 16 }, "between 0 and 15"},
		{"pool", func(c *registry.KVStoreConfig) { c.RedisConfig.PoolSize = 0 }, "pool_size"},
		{"dial timeout", func(c *registry.KVStoreConfig) { c.DialTimeout = 0 }, "dial_timeout"},
		{"retries", func(c *registry.KVStoreConfig) { c.MaxRetries = -1 }, "max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRedisConfig("localhost:6379")
			tt.mutate(&cfg)
			err := (&RedisConfigValidator{}).Validate(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	dynamo := registry.KVStoreConfig{
		Type:           "dynamodb",
		DynamoDBConfig: registry.DynamoDBConfig{Region: "eu-central-1", TableName: "links", AccessKeyID: "id"},
		DialTimeout:    time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
	}
	assert.ErrorContains(t, (&DynamoDBConfigValidator{}).Validate(&dynamo), "must be set together")
	dynamo.DynamoDBConfig.SecretAccessKey = "secret"
	assert.NoError(t, (&DynamoDBConfigValidator{}).Validate(&dynamo))
	dynamo.DynamoDBConfig.TableName = ""
	assert.ErrorContains(t, (&DynamoDBConfigValidator{}).Validate(&dynamo), "table_name")

	v, ok := registry.GetValidator("memory")
	require.True(t, ok)
	assert.NoError(t, v.Validate(&registry.KVStoreConfig{Type: "memory"}))
}
