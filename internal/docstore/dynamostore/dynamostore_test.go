package dynamostore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

type mockDynamo struct {
	getOutput     *dynamodb.GetItemOutput
	getInput      *dynamodb.GetItemInput
	transactInput *dynamodb.TransactWriteItemsInput
	transactErr   error
	scanPages     []*dynamodb.ScanOutput
	scanInputs    []dynamodb.ScanInput
	queryPages    []*dynamodb.QueryOutput
	queryInputs   []dynamodb.QueryInput
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.getInput = in
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

func (m *mockDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.transactInput = in
	if m.transactErr != nil {
		return nil, m.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.scanInputs = append(m.scanInputs, *in)
	if len(m.scanPages) == 0 {
		return &dynamodb.ScanOutput{}, nil
	}
	page := m.scanPages[0]
	m.scanPages = m.scanPages[1:]
	return page, nil
}

func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryInputs = append(m.queryInputs, *in)
	if len(m.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := m.queryPages[0]
	m.queryPages = m.queryPages[1:]
	return page, nil
}

var dayPath = docstore.Doc("doctors", "doc1", "days", "2025-06-01")

func TestLoadAbsentDocument(t *testing.T) {
	mock := &mockDynamo{}
	b := New(mock, "mindcare_documents", logging.Default())

	snap, err := b.Load(context.Background(), dayPath)
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.True(t, aws.ToBool(mock.getInput.ConsistentRead))
	assert.Equal(t, dayPath.String(), mock.getInput.Key["path"].(*types.AttributeValueMemberS).Value)
}

func TestLoadDecodesItem(t *testing.T) {
	data, err := attributevalue.Marshal(map[string]any{"taken": map[string]any{"14:00": "a1"}})
	require.NoError(t, err)
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"path":       &types.AttributeValueMemberS{Value: dayPath.String()},
		"collection": &types.AttributeValueMemberS{Value: dayPath.Collection()},
		"data":       data,
		"version":    &types.AttributeValueMemberN{Value: "3"},
	}}}
	b := New(mock, "mindcare_documents", nil)

	snap, err := b.Load(context.Background(), dayPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, "a1", snap.Data["taken"].(map[string]any)["14:00"])
}

func TestCommitBuildsConditionalTransaction(t *testing.T) {
	mock := &mockDynamo{}
	b := New(mock, "mindcare_documents", nil)
	doctor := docstore.Doc("doctors", "doc1")
	appt := docstore.Doc("appointments", "a1")

	err := b.Commit(context.Background(),
		[]docstore.Check{{Path: doctor, Version: 2}},
		[]docstore.Write{
			{Path: appt, Data: map[string]any{"status": "upcoming"}, Expected: 0},
			{Path: dayPath, Data: map[string]any{"taken": map[string]any{"14:00": "a1"}}, Expected: 4},
		})
	require.NoError(t, err)

	items := mock.transactInput.TransactItems
	require.Len(t, items, 3)

	check := items[0].ConditionCheck
	require.NotNil(t, check)
	assert.Equal(t, "#version = :expected", aws.ToString(check.ConditionExpression))
	assert.Equal(t, "2", check.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value)

	create := items[1].Put
	require.NotNil(t, create)
	assert.Equal(t, "attribute_not_exists(#path)", aws.ToString(create.ConditionExpression))
	assert.Equal(t, "1", create.Item["version"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "appointments", create.Item["collection"].(*types.AttributeValueMemberS).Value)

	update := items[2].Put
	require.NotNil(t, update)
	assert.Equal(t, "4", update.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "5", update.Item["version"].(*types.AttributeValueMemberN).Value)
}

func TestCommitTokenIdentifiesContents(t *testing.T) {
	mock := &mockDynamo{}
	b := New(mock, "mindcare_documents", nil)
	commit := func(owner string) string {
		require.NoError(t, b.Commit(context.Background(), nil, []docstore.Write{
			{Path: dayPath, Data: map[string]any{"taken": map[string]any{"14:00": owner}}, Expected: 1},
		}))
		token := aws.ToString(mock.transactInput.ClientRequestToken)
		require.NotEmpty(t, token)
		assert.LessOrEqual(t, len(token), 36)
		return token
	}

	first := commit("a1")
	assert.Equal(t, first, commit("a1"))
	assert.NotEqual(t, first, commit("a2"))
}

func TestCommitMapsCancellationToConflict(t *testing.T) {
	mock := &mockDynamo{transactErr: &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}}
	b := New(mock, "mindcare_documents", nil)

	err := b.Commit(context.Background(), nil, []docstore.Write{{Path: dayPath, Data: map[string]any{}}})
	assert.ErrorIs(t, err, docstore.ErrConflict)
}

func TestCommitPassesThroughInfrastructureErrors(t *testing.T) {
	mock := &mockDynamo{transactErr: errors.New("throttled")}
	b := New(mock, "mindcare_documents", nil)

	err := b.Commit(context.Background(), nil, []docstore.Write{{Path: dayPath, Data: map[string]any{}}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, docstore.ErrConflict)
}

func TestQueryPaginatesAndFilters(t *testing.T) {
	item := func(id, user string) map[string]types.AttributeValue {
		data, err := attributevalue.Marshal(map[string]any{"userId": user})
		require.NoError(t, err)
		return map[string]types.AttributeValue{
			"path":    &types.AttributeValueMemberS{Value: "appointments/" + id},
			"data":    data,
			"version": &types.AttributeValueMemberN{Value: "1"},
		}
	}
	mock := &mockDynamo{scanPages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{item("a2", "u1"), item("a3", "u2")},
			LastEvaluatedKey: map[string]types.AttributeValue{"path": &types.AttributeValueMemberS{Value: "appointments/a3"}},
		},
		{Items: []map[string]types.AttributeValue{item("a1", "u1")}},
	}}
	b := New(mock, "mindcare_documents", nil)

	snaps, err := b.Query(context.Background(), "appointments", docstore.Where("userId", "u1"))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "a1", snaps[0].Path.ID())
	assert.Equal(t, "a2", snaps[1].Path.ID())
	require.Len(t, mock.scanInputs, 2)
	assert.NotNil(t, mock.scanInputs[1].ExclusiveStartKey)
	assert.Equal(t, "#collection = :collection AND #data.#f0 = :f0", aws.ToString(mock.scanInputs[0].FilterExpression))
	assert.True(t, aws.ToBool(mock.scanInputs[0].ConsistentRead))
}

func TestQueryUsesCollectionIndex(t *testing.T) {
	item := func(id string, delivered bool) map[string]types.AttributeValue {
		data, err := attributevalue.Marshal(map[string]any{"delivered": delivered})
		require.NoError(t, err)
		return map[string]types.AttributeValue{
			"path":    &types.AttributeValueMemberS{Value: "outbox/" + id},
			"data":    data,
			"version": &types.AttributeValueMemberN{Value: "1"},
		}
	}
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item("e2", false)},
			LastEvaluatedKey: map[string]types.AttributeValue{"path": &types.AttributeValueMemberS{Value: "outbox/e2"}},
		},
		{Items: []map[string]types.AttributeValue{item("e1", false), item("e3", true)}},
	}}
	b := New(mock, "mindcare_documents", nil, WithCollectionIndex("collection-index"))

	snaps, err := b.Query(context.Background(), "outbox", docstore.Where("delivered", false))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "e1", snaps[0].Path.ID())
	assert.Equal(t, "e2", snaps[1].Path.ID())

	assert.Empty(t, mock.scanInputs)
	require.Len(t, mock.queryInputs, 2)
	in := mock.queryInputs[0]
	assert.Equal(t, "collection-index", aws.ToString(in.IndexName))
	assert.Equal(t, "#collection = :collection", aws.ToString(in.KeyConditionExpression))
	assert.Equal(t, "#data.#f0 = :f0", aws.ToString(in.FilterExpression))
	assert.Equal(t, "delivered", in.ExpressionAttributeNames["#f0"])
	assert.Equal(t, "outbox", in.ExpressionAttributeValues[":collection"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, false, in.ExpressionAttributeValues[":f0"].(*types.AttributeValueMemberBOOL).Value)
	assert.NotNil(t, mock.queryInputs[1].ExclusiveStartKey)
}

func TestNewPanicsWithoutClient(t *testing.T) {
	assert.Panics(t, func() { New(nil, "table", nil) })
	assert.Panics(t, func() { New(&mockDynamo{}, "", nil) })
}
