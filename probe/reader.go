package probe

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Latest returns the record with the greatest committed version for id,
// via a descending limit-1 query on the partition.
//
// Every id the probe reads is seeded with version 0 before workers are
// released, so an empty result here is a store consistency violation,
// surfaced as *EmptyReadError rather than a not-found.
func (p *Probe) Latest(ctx context.Context, id string) (Record, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.config.Table),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(p.config.ConsistentRead),
	})
	if err != nil {
		return Record{}, err
	}
	if len(out.Items) == 0 {
		return Record{}, &EmptyReadError{ID: id}
	}
	return unmarshalRecord(out.Items[0])
}
