package probe

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDB is the subset of the DynamoDB client surface the probe
// issues: a descending limit-1 query for the latest version, a point
// read for verification, and the atomic conditional multi-put.
// *dynamodb.Client satisfies it; tests and the CLI's local mode
// substitute an in-memory implementation with injectable read faults.
type DynamoDB interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}
