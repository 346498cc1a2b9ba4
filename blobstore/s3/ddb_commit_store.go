package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/cubestore/blobstore"
)

// DefaultPointerName is the blob name whose versions DDBCommitStore commits
// through DynamoDB. It matches the catalog's CURRENT pointer.
const DefaultPointerName = "CURRENT"

// DDBCommitStore is a blobstore.BlobStore that keeps pointer blobs in a
// DynamoDB table and everything else in an underlying store, usually S3.
//
// S3 has no compare-and-swap, so two processes swapping the same CURRENT
// pointer lose each other's manifest. DynamoDB conditional puts give the
// pointer that atomicity:
//   - every pointer version is an item keyed by (base_uri, version)
//   - Commit writes the item only if that version does not exist yet
//   - Open of a pointer returns the newest committed version
//
// A pointer lives in its own partition, base_uri plus the pointer's
// directory, so the datasets of one catalog commit independently. An empty
// marker blob is kept in the underlying store so List still finds pointers.
//
// Table schema:
//   - Partition key: base_uri (string)
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name cubestore-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	store     blobstore.BlobStore
	ddbClient DDBClient
	tableName string
	baseURI   string
	pointer   string
}

var (
	_ blobstore.BlobStore = (*DDBCommitStore)(nil)
	_ blobstore.Committer = (*DDBCommitStore)(nil)
)

// DDBClient is the subset of the DynamoDB API used by DDBCommitStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when another writer committed the
// same pointer version first.
var ErrConcurrentModification = fmt.Errorf("s3: concurrent modification: %w", blobstore.ErrConflict)

// NewDDBCommitStore wraps store. baseURI, e.g. "s3://bucket/prefix",
// namespaces the table items of this store.
func NewDDBCommitStore(store blobstore.BlobStore, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		store:     store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
		pointer:   DefaultPointerName,
	}
}

// OpenDDBCommitStore opens an S3 store for bucket whose pointers are
// committed through the DynamoDB table, both clients built from the default
// AWS config chain.
func OpenDDBCommitStore(ctx context.Context, bucket, tableName string, optFns ...Option) (*DDBCommitStore, error) {
	opts := newOptions(optFns)
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	ddb := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.endpoint != "" {
			o.BaseEndpoint = aws.String(opts.endpoint)
		}
	})
	baseURI := "s3://" + path.Join(bucket, opts.prefix)
	return NewDDBCommitStore(newStore(cfg, bucket, opts), ddb, tableName, baseURI), nil
}

func (s *DDBCommitStore) isPointer(name string) bool {
	return path.Base(name) == s.pointer
}

// partition returns the table partition of the pointer blob name.
func (s *DDBCommitStore) partition(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return s.baseURI
	}
	return s.baseURI + "/" + dir
}

// Open returns the newest committed version for pointer blobs and reads
// other blobs from the underlying store.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if !s.isPointer(name) {
		return s.store.Open(ctx, name)
	}

	version, data, err := s.latest(ctx, s.partition(name))
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%s: %w", name, blobstore.ErrNotFound)
	}
	return &pointerBlob{content: data}, nil
}

// Put writes a blob. A pointer is committed as the version after the newest
// one; use Commit to make the swap conditional on the version read.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if !s.isPointer(name) {
		return s.store.Put(ctx, name, data)
	}

	version, _, err := s.latest(ctx, s.partition(name))
	if err != nil {
		return err
	}
	return s.Commit(ctx, name, data, version+1)
}

// Commit implements blobstore.Committer. Blobs that are not pointers are
// written unconditionally.
func (s *DDBCommitStore) Commit(ctx context.Context, name string, data []byte, version uint64) error {
	if !s.isPointer(name) {
		return s.store.Put(ctx, name, data)
	}

	// The marker goes first; losing writers leave it as it was found.
	if err := s.store.Put(ctx, name, nil); err != nil {
		return err
	}

	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.partition(name)},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"manifest_path": &types.AttributeValueMemberS{Value: string(data)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%s version %d: %w", name, version, ErrConcurrentModification)
		}
		return fmt.Errorf("s3: commit %s to dynamodb: %w", name, err)
	}
	return nil
}

// Delete removes a blob. Deleting a pointer removes all its versions.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if !s.isPointer(name) {
		return s.store.Delete(ctx, name)
	}

	part := s.partition(name)
	versions, err := s.versions(ctx, part)
	if err != nil {
		return err
	}
	for _, v := range versions {
		_, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"base_uri": &types.AttributeValueMemberS{Value: part},
				"version":  &types.AttributeValueMemberN{Value: v},
			},
		})
		if err != nil {
			return fmt.Errorf("s3: delete %s version %s: %w", name, v, err)
		}
	}
	return s.store.Delete(ctx, name)
}

// List lists the blobs of the underlying store.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.store.List(ctx, prefix)
}

// latest returns the newest committed version of a partition, or 0.
func (s *DDBCommitStore) latest(ctx context.Context, part string) (uint64, []byte, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: part},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("s3: query dynamodb: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, nil, nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil, errors.New("s3: invalid version attribute in dynamodb")
	}
	pathAttr, ok := item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, nil, errors.New("s3: invalid manifest_path attribute in dynamodb")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("s3: parse version: %w", err)
	}
	return version, []byte(pathAttr.Value), nil
}

// versions returns every committed version of a partition.
func (s *DDBCommitStore) versions(ctx context.Context, part string) ([]string, error) {
	var (
		out   []string
		start map[string]types.AttributeValue
	)
	for {
		resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri": &types.AttributeValueMemberS{Value: part},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: query dynamodb: %w", err)
		}
		for _, item := range resp.Items {
			if v, ok := item["version"].(*types.AttributeValueMemberN); ok {
				out = append(out, v.Value)
			}
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = resp.LastEvaluatedKey
	}
}

// pointerBlob serves the content of a committed pointer version.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error { return nil }
func (b *pointerBlob) Size() int64  { return int64(len(b.content)) }

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
