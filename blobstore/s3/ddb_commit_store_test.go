package s3

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shmtree/blobstore"
)

// fakeDDB is an in-memory stand-in for the commit table: one partition,
// items keyed by version string.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	queryErr   error
	afterQuery func(f *fakeDDB) // runs under mu, once, after a Query
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDDB) put(version, name string) {
	f.items[version] = map[string]types.AttributeValue{
		"base_uri":      &types.AttributeValueMemberS{Value: "s3://bucket/prefix"},
		"version":       &types.AttributeValueMemberN{Value: version},
		"snapshot_name": &types.AttributeValueMemberS{Value: name},
	}
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	if _, exists := f.items[version]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[version] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return nil, f.queryErr
	}

	versions := make([]string, 0, len(f.items))
	for v := range f.items {
		versions = append(versions, v)
	}
	// Numeric sort keys come back descending with ScanIndexForward=false.
	sort.Slice(versions, func(i, j int) bool {
		return atoiOrZero(versions[i]) > atoiOrZero(versions[j])
	})

	out := &dynamodb.QueryOutput{}
	for _, v := range versions {
		out.Items = append(out.Items, f.items[v])
		if params.Limit != nil && len(out.Items) >= int(*params.Limit) {
			break
		}
	}

	if f.afterQuery != nil {
		hook := f.afterQuery
		f.afterQuery = nil
		hook(f)
	}
	return out, nil
}

func atoiOrZero(s string) uint64 {
	var n uint64
	fmt.Sscanf(s, "%d", &n)
	return n
}

func newCommitStore(ddb DDBClient) *DDBCommitStore {
	return NewDDBCommitStore(nil, ddb, "commits", "s3://bucket/prefix")
}

func TestDDBCommitStore_CurrentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newCommitStore(newFakeDDB())

	// No commit yet.
	_, err := store.Open(ctx, "CURRENT")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snap-001")))

	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	require.NoError(t, err)
	name, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "snap-001", string(name))
}

func TestDDBCommitStore_LaterCommitWins(t *testing.T) {
	ctx := context.Background()
	store := newCommitStore(newFakeDDB())

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snap-001")))
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snap-002")))

	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, b.Size())
	_, err = b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "snap-002", string(buf))
}

func TestDDBCommitStore_ConcurrentCommitDetected(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	store := newCommitStore(ddb)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snap-001")))

	// Another writer claims version 2 between our Query and PutItem.
	ddb.afterQuery = func(f *fakeDDB) { f.put("2", "snap-other") }

	err := store.Put(ctx, "CURRENT", []byte("snap-002"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	// A retry re-reads the new version and succeeds.
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snap-002")))

	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)
	defer b.Close()
	buf := make([]byte, b.Size())
	_, err = b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "snap-002", string(buf))
}

func TestDDBCommitStore_QueryErrorPropagates(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	ddb.queryErr = fmt.Errorf("throttled")
	store := newCommitStore(ddb)

	_, err := store.Open(ctx, "CURRENT")
	assert.ErrorContains(t, err, "throttled")

	err = store.Put(ctx, "CURRENT", []byte("snap"))
	assert.ErrorContains(t, err, "throttled")
}

func TestDDBCommitStore_CurrentBlobReads(t *testing.T) {
	ctx := context.Background()
	store := newCommitStore(newFakeDDB())
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snapshot-name")))

	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(13), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 9)
	require.NoError(t, err)
	assert.Equal(t, "name", string(buf[:n]))

	_, err = b.ReadAt(ctx, buf, 99)
	assert.ErrorIs(t, err, io.EOF)
}
