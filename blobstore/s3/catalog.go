package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/blockfs/blobstore"
)

// Catalog tracks committed snapshots of a volume in DynamoDB. S3 has no
// compare-and-swap, so the catalog supplies the atomic "current snapshot"
// pointer: exporters commit under a monotonically increasing version with
// a conditional write, and readers query the highest version.
//
// Table schema:
//   - Partition key: volume_id (string)
//   - Sort key: version (number)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name blockfs-snapshots \
//	  --attribute-definitions AttributeName=volume_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=volume_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Catalog struct {
	client    DDBClient
	tableName string
	volumeID  string
}

// DDBClient is the subset of the DynamoDB API the catalog uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentCommit is returned when another exporter committed the
// same version first.
var ErrConcurrentCommit = errors.New("concurrent snapshot commit detected")

// NewCatalog creates a snapshot catalog for one volume.
func NewCatalog(client DDBClient, tableName, volumeID string) *Catalog {
	return &Catalog{
		client:    client,
		tableName: tableName,
		volumeID:  volumeID,
	}
}

// Commit registers a snapshot blob under the next version. It returns the
// committed version, or ErrConcurrentCommit if another exporter won the
// race; the caller may retry with a fresh snapshot.
func (c *Catalog) Commit(ctx context.Context, snapshotName string) (uint64, error) {
	current, _, err := c.latest(ctx)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return 0, err
	}

	next := current + 1

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"volume_id":     &types.AttributeValueMemberS{Value: c.volumeID},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"snapshot_name": &types.AttributeValueMemberS{Value: snapshotName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentCommit
		}
		return 0, fmt.Errorf("commit snapshot version: %w", err)
	}

	return next, nil
}

// Latest returns the most recently committed snapshot. It returns
// blobstore.ErrNotFound if nothing was ever committed.
func (c *Catalog) Latest(ctx context.Context) (uint64, string, error) {
	return c.latest(ctx)
}

func (c *Catalog) latest(ctx context.Context) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("volume_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: c.volumeID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query snapshot catalog: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", blobstore.ErrNotFound
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("malformed version attribute in catalog")
	}
	nameAttr, ok := item["snapshot_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("malformed snapshot_name attribute in catalog")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse catalog version: %w", err)
	}

	return version, nameAttr.Value, nil
}

// Forget removes a version from the catalog, after its blob was deleted.
func (c *Catalog) Forget(ctx context.Context, version uint64) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"volume_id": &types.AttributeValueMemberS{Value: c.volumeID},
			"version":   &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	return err
}
