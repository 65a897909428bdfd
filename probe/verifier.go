package probe

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Verify asserts, via point lookups, that a record exists at every
// version 0..versions-1 of id. It deliberately avoids the latest-only
// query path the workers use, so it cannot mask the read anomaly that
// path is built to detect. Verify performs no writes and is idempotent.
func (p *Probe) Verify(ctx context.Context, id string, versions int) error {
	for v := 0; v < versions; v++ {
		out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(p.config.Table),
			Key:       recordKey(id, v),
		})
		if err != nil {
			return err
		}
		if out.Item == nil {
			return &VerificationError{ID: id, Version: v}
		}
	}
	return nil
}

// VerifyAll checks the terminal state: the parent carries one version
// per worker plus the seed, each child exactly two. The first missing
// version of each entity is collected; transport errors abort.
func (p *Probe) VerifyAll(ctx context.Context) ([]VerificationError, error) {
	var missing []VerificationError

	check := func(id string, versions int) error {
		err := p.Verify(ctx, id, versions)
		var verr *VerificationError
		if errors.As(err, &verr) {
			missing = append(missing, *verr)
			return nil
		}
		return err
	}

	if err := check(ParentID, p.config.Children+1); err != nil {
		return nil, err
	}
	for n := 0; n < p.config.Children; n++ {
		if err := check(ChildID(n), 2); err != nil {
			return nil, err
		}
	}
	return missing, nil
}
