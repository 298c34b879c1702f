// Package dynamostore stores documents in a single DynamoDB table keyed by
// document path. Commits use TransactWriteItems with per-item version
// conditions so a transaction lands completely or not at all. Collection
// queries go through a global secondary index keyed by "collection" when one
// is configured, and fall back to a table scan otherwise.
package dynamostore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call.
const maxTransactItems = 100

const (
	attrPath       = "path"
	attrCollection = "collection"
	attrData       = "data"
	attrVersion    = "version"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Backend implements docstore.Backend on DynamoDB.
type Backend struct {
	client          dynamoAPI
	tableName       string
	collectionIndex string
	logger          *logging.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithCollectionIndex names the GSI (partition key "collection", all
// attributes projected) used for collection queries.
func WithCollectionIndex(name string) Option {
	return func(b *Backend) { b.collectionIndex = name }
}

var _ docstore.Backend = (*Backend)(nil)

// New builds a backend over the given table.
func New(client dynamoAPI, tableName string, logger *logging.Logger, opts ...Option) *Backend {
	if client == nil {
		panic("dynamostore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dynamostore: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	b := &Backend{client: client, tableName: tableName, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load performs a strongly consistent read of one document.
func (b *Backend) Load(ctx context.Context, path docstore.Path) (*docstore.Snapshot, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            keyFor(path),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get %s: %w", path, err)
	}
	if out.Item == nil {
		return &docstore.Snapshot{Path: path}, nil
	}
	return decodeItem(out.Item)
}

// Commit writes every document in one TransactWriteItems call. Documents that
// were only read become ConditionCheck items.
func (b *Backend) Commit(ctx context.Context, checks []docstore.Check, writes []docstore.Write) error {
	if len(checks)+len(writes) > maxTransactItems {
		return fmt.Errorf("dynamostore: transaction touches %d documents, limit is %d", len(checks)+len(writes), maxTransactItems)
	}
	items := make([]types.TransactWriteItem, 0, len(checks)+len(writes))
	for _, c := range checks {
		cond, values := versionCondition(c.Version)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(b.tableName),
				Key:                       keyFor(c.Path),
				ConditionExpression:       aws.String(cond),
				ExpressionAttributeNames:  conditionNames(c.Version),
				ExpressionAttributeValues: values,
			},
		})
	}
	for _, w := range writes {
		item, err := encodeItem(w)
		if err != nil {
			return err
		}
		cond, values := versionCondition(w.Expected)
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(b.tableName),
				Item:                      item,
				ConditionExpression:       aws.String(cond),
				ExpressionAttributeNames:  conditionNames(w.Expected),
				ExpressionAttributeValues: values,
			},
		})
	}

	token, err := requestToken(checks, writes)
	if err != nil {
		return err
	}
	_, err = b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(token),
	})
	if err == nil {
		return nil
	}
	if isConflict(err) {
		b.logger.Debug("dynamostore: commit conflict", "items", len(items), "error", err)
		return docstore.ErrConflict
	}
	return fmt.Errorf("dynamostore: transact write: %w", err)
}

// Query returns the documents of collection matching every filter. Filters
// are evaluated by DynamoDB and checked again on the decoded documents, since
// index reads are eventually consistent.
func (b *Backend) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Snapshot, error) {
	filterExpr, names, values, err := filterExpression(filters)
	if err != nil {
		return nil, err
	}
	names["#collection"] = attrCollection
	values[":collection"] = &types.AttributeValueMemberS{Value: collection}

	var items []map[string]types.AttributeValue
	if b.collectionIndex != "" {
		items, err = b.queryIndex(ctx, collection, filterExpr, names, values)
	} else {
		items, err = b.scanTable(ctx, collection, filterExpr, names, values)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*docstore.Snapshot, 0, len(items))
	for _, item := range items {
		snap, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		if docstore.Matches(snap.Data, filters) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *Backend) queryIndex(ctx context.Context, collection, filterExpr string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(b.tableName),
		IndexName:                 aws.String(b.collectionIndex),
		KeyConditionExpression:    aws.String("#collection = :collection"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	var items []map[string]types.AttributeValue
	for {
		page, err := b.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: query %s: %w", collection, err)
		}
		items = append(items, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (b *Backend) scanTable(ctx context.Context, collection, filterExpr string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	expr := "#collection = :collection"
	if filterExpr != "" {
		expr += " AND " + filterExpr
	}
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(b.tableName),
		FilterExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}
	var items []map[string]types.AttributeValue
	for {
		page, err := b.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: scan %s: %w", collection, err)
		}
		items = append(items, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// filterExpression renders equality filters on data fields, e.g.
// "#data.#f0 = :f0 AND #data.#f1 = :f1".
func filterExpression(filters []docstore.Filter) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if len(filters) == 0 {
		return "", names, values, nil
	}
	names["#data"] = attrData
	clauses := make([]string, 0, len(filters))
	for i, f := range filters {
		av, err := attributevalue.Marshal(f.Value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("dynamostore: filter %s: %w", f.Field, err)
		}
		name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[name] = f.Field
		values[value] = av
		clauses = append(clauses, fmt.Sprintf("#data.%s = %s", name, value))
	}
	return strings.Join(clauses, " AND "), names, values, nil
}

// requestToken derives the idempotency token from the commit contents, so a
// commit replayed after an ambiguous failure is applied at most once.
func requestToken(checks []docstore.Check, writes []docstore.Write) (string, error) {
	body, err := json.Marshal(struct {
		Checks []docstore.Check
		Writes []docstore.Write
	}{checks, writes})
	if err != nil {
		return "", fmt.Errorf("dynamostore: request token: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:16]), nil
}

func keyFor(path docstore.Path) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPath: &types.AttributeValueMemberS{Value: path.String()},
	}
}

func versionCondition(expected int64) (string, map[string]types.AttributeValue) {
	if expected == 0 {
		return "attribute_not_exists(#path)", nil
	}
	return "#version = :expected", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
	}
}

func conditionNames(expected int64) map[string]string {
	if expected == 0 {
		return map[string]string{"#path": attrPath}
	}
	return map[string]string{"#version": attrVersion}
}

func encodeItem(w docstore.Write) (map[string]types.AttributeValue, error) {
	data := w.Data
	if data == nil {
		data = map[string]any{}
	}
	body, err := attributevalue.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: marshal %s: %w", w.Path, err)
	}
	return map[string]types.AttributeValue{
		attrPath:       &types.AttributeValueMemberS{Value: w.Path.String()},
		attrCollection: &types.AttributeValueMemberS{Value: w.Path.Collection()},
		attrData:       body,
		attrVersion:    &types.AttributeValueMemberN{Value: strconv.FormatInt(w.NewVersion(), 10)},
	}, nil
}

type storedItem struct {
	Path    string         `dynamodbav:"path"`
	Data    map[string]any `dynamodbav:"data"`
	Version int64          `dynamodbav:"version"`
}

func decodeItem(item map[string]types.AttributeValue) (*docstore.Snapshot, error) {
	var stored storedItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, fmt.Errorf("dynamostore: decode item: %w", err)
	}
	if stored.Data == nil {
		stored.Data = map[string]any{}
	}
	return &docstore.Snapshot{Path: docstore.Path(stored.Path), Data: stored.Data, Version: stored.Version}, nil
}

func isConflict(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
		return false
	}
	var txConflict *types.TransactionConflictException
	return errors.As(err, &txConflict)
}
