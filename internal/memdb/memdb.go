// Package memdb provides a linearizable in-memory stand-in for the
// DynamoDB operations the probe issues. It backs the unit tests and the
// CLI's --local mode, and can inject the empty-read fault the probe
// exists to detect.
//
// Only the request shapes the probe sends are supported: a partition
// query with an ":id" value, a point read keyed by id and version, and
// a transaction of puts conditioned on slot vacancy. All three run under
// a single mutex, so a transaction's condition checks and writes are
// atomic, matching TransactWriteItems semantics.
package memdb

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store is an in-memory versioned-record table.
type Store struct {
	mu    sync.Mutex
	items map[string]map[int]map[string]types.AttributeValue

	emptyReads map[string]int
	queryErrs  map[string]error
	writeErr   error
	conflicts  int
	writeCalls int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		items:      make(map[string]map[int]map[string]types.AttributeValue),
		emptyReads: make(map[string]int),
		queryErrs:  make(map[string]error),
	}
}

// FailReads makes the next n latest-version queries for id return an
// empty result, simulating the read anomaly.
func (s *Store) FailReads(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyReads[id] = n
}

// FailQueries makes every subsequent latest-version query for id fail
// with err, simulating a transport failure. Pass nil to clear.
func (s *Store) FailQueries(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.queryErrs, id)
		return
	}
	s.queryErrs[id] = err
}

// FailWrites makes every subsequent transaction fail with err. Pass nil
// to clear.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// ForceConflicts cancels the next n transactions with a
// TransactionConflict reason regardless of slot state.
func (s *Store) ForceConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// WriteCalls reports how many transactions have been submitted.
func (s *Store) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}

// Versions returns the committed versions of id in ascending order.
func (s *Store) Versions(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make([]int, 0, len(s.items[id]))
	for v := range s.items[id] {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Delete removes a committed record, for constructing verification
// failures in tests.
func (s *Store) Delete(id string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items[id], version)
}

// Query returns the single greatest-version record for the ":id" value,
// or nothing when an injected empty read is pending.
func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := params.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("memdb: query requires an \":id\" string value")
	}
	id := attr.Value

	if err := s.queryErrs[id]; err != nil {
		return nil, err
	}
	if s.emptyReads[id] > 0 {
		s.emptyReads[id]--
		return &dynamodb.QueryOutput{}, nil
	}

	versions := s.items[id]
	if len(versions) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	latest := -1
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{versions[latest]},
	}, nil
}

// GetItem returns the record at the exact (id, version) key, if any.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, version, err := keySlot(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := s.items[id][version]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// TransactWriteItems applies all puts atomically, or none: if any slot
// is occupied the whole transaction is cancelled with per-item reasons,
// exactly one ConditionalCheckFailed per occupied slot.
func (s *Store) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeCalls++

	if s.writeErr != nil {
		return nil, s.writeErr
	}
	if s.conflicts > 0 {
		s.conflicts--
		reasons := make([]types.CancellationReason, len(params.TransactItems))
		for i := range reasons {
			reasons[i] = types.CancellationReason{Code: aws.String("TransactionConflict")}
		}
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	cancelled := false
	for i, item := range params.TransactItems {
		if item.Put == nil {
			return nil, errors.New("memdb: only Put transact items are supported")
		}
		id, version, err := keySlot(item.Put.Item)
		if err != nil {
			return nil, err
		}
		if _, exists := s.items[id][version]; exists {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			cancelled = true
		} else {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, item := range params.TransactItems {
		id, version, _ := keySlot(item.Put.Item)
		if s.items[id] == nil {
			s.items[id] = make(map[int]map[string]types.AttributeValue)
		}
		s.items[id][version] = item.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func keySlot(attrs map[string]types.AttributeValue) (string, int, error) {
	idAttr, ok := attrs["id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", 0, errors.New("memdb: item requires a string \"id\" attribute")
	}
	versionAttr, ok := attrs["version"].(*types.AttributeValueMemberN)
	if !ok {
		return "", 0, errors.New("memdb: item requires a numeric \"version\" attribute")
	}
	version, err := strconv.Atoi(versionAttr.Value)
	if err != nil {
		return "", 0, err
	}
	return idAttr.Value, version, nil
}
