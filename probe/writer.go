package probe

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Commit writes records as one atomic transaction. Every put is guarded
// by the vacancy condition on its (id, version) slot, so of any set of
// racing transactions targeting the same slot, at most one applies and
// none applies partially.
//
// The returned bool reports whether the transaction applied. A
// cancellation whose reason is a failed condition or a write-write
// conflict on any item returns (false, nil): the slot was taken by a
// concurrent writer and the caller should re-read and resubmit. Any
// other rejection is returned as an error and must not be retried.
func (p *Probe) Commit(ctx context.Context, records ...Record) (bool, error) {
	items := make([]types.TransactWriteItem, 0, len(records))
	for _, r := range records {
		item, err := marshalRecord(r)
		if err != nil {
			return false, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(p.config.Table),
				Item:                item,
				ConditionExpression: aws.String(notExistsCondition),
			},
		})
	}

	_, err := p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return true, nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed", "TransactionConflict":
				return false, nil
			}
		}
	}

	return false, err
}
