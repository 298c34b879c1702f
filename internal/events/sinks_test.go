package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSSinkSendsEnvelope(t *testing.T) {
	mock := &mockSQS{}
	sink := NewSQSSink(mock, "https://sqs.local/000000000000/appointment-events")
	env := Envelope{EventID: uuid.New(), EventType: TypeAppointmentReserved, AppointmentID: "a1", Payload: json.RawMessage(`{"appointment_id":"a1"}`)}

	require.NoError(t, sink.Handle(context.Background(), env))
	require.NotNil(t, mock.input)
	assert.Equal(t, "https://sqs.local/000000000000/appointment-events", aws.ToString(mock.input.QueueUrl))
	assert.Equal(t, TypeAppointmentReserved, aws.ToString(mock.input.MessageAttributes["event_type"].StringValue))

	var decoded Envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(mock.input.MessageBody)), &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestSQSSinkWrapsErrors(t *testing.T) {
	sink := NewSQSSink(&mockSQS{err: errors.New("throttled")}, "queue")
	err := sink.Handle(context.Background(), Envelope{EventID: uuid.New()})
	assert.ErrorContains(t, err, "throttled")
}

func TestNewSQSSinkPanics(t *testing.T) {
	assert.Panics(t, func() { NewSQSSink(nil, "queue") })
	assert.Panics(t, func() { NewSQSSink(&mockSQS{}, "") })
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, NewLogSink(nil).Handle(context.Background(), Envelope{EventID: uuid.New()}))
}

type countingHandler struct {
	calls int
	err   error
}

func (c *countingHandler) Handle(context.Context, Envelope) error {
	c.calls++
	return c.err
}

func TestFanoutCallsEveryHandler(t *testing.T) {
	first := &countingHandler{err: errors.New("smtp down")}
	second := &countingHandler{}

	err := Fanout{first, second}.Handle(context.Background(), Envelope{EventID: uuid.New()})
	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	assert.NoError(t, Fanout{second}.Handle(context.Background(), Envelope{EventID: uuid.New()}))
}
