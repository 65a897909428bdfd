package probe

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// ParentID is the partition key of the single shared contention entity.
	ParentID = "parent"

	// ActionCreate tags the version 0 record written during setup.
	ActionCreate = "create"

	// ActionParent tags a child mutation committed alongside a parent
	// mutation. The matching parent mutation is tagged with the child id.
	ActionParent = "parent"
)

// ChildID returns the partition key of the nth child entity.
func ChildID(n int) string {
	return fmt.Sprintf("child-%d", n)
}

// Record is one committed version of an entity. Records are immutable
// once written; a mutation is always a new record at the next version.
type Record struct {
	ID      string `dynamodbav:"id"`
	Version int    `dynamodbav:"version"`
	Action  string `dynamodbav:"action"`
}

// NewRecord returns the version 0 record an entity starts from.
func NewRecord(id string) Record {
	return Record{ID: id, Version: 0, Action: ActionCreate}
}

// Next returns the successor version tagged with action.
func (r Record) Next(action string) Record {
	return Record{ID: r.ID, Version: r.Version + 1, Action: action}
}

// Key returns the composite primary key for a point lookup of r.
func (r Record) Key() map[string]types.AttributeValue {
	return recordKey(r.ID, r.Version)
}

func recordKey(id string, version int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":      &types.AttributeValueMemberS{Value: id},
		"version": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
	}
}

// notExistsCondition guards every put: the exact (id, version) slot must
// be vacant. Two transactions racing for the same slot can therefore
// never both commit.
const notExistsCondition = "attribute_not_exists(id) AND attribute_not_exists(version)"

func marshalRecord(r Record) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s@%d: %w", r.ID, r.Version, err)
	}
	return item, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (Record, error) {
	var r Record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}
