package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

type sqsAPI interface {
	SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes envelopes to an SQS queue for downstream consumers
// (reminders, receipts, analytics).
type SQSSink struct {
	client   sqsAPI
	queueURL string
}

// NewSQSSink creates a sink around the provided SQS client.
func NewSQSSink(client sqsAPI, queueURL string) *SQSSink {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Handle(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type":     {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
			"appointment_id": {DataType: aws.String("String"), StringValue: aws.String(env.AppointmentID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogSink writes envelopes to the log; used when no queue is configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Handle(_ context.Context, env Envelope) error {
	s.logger.Info("appointment event", "event_id", env.EventID.String(), "type", env.EventType, "appointment_id", env.AppointmentID)
	return nil
}

// Fanout hands every envelope to each handler in order. Any failure fails the
// delivery, so handlers that already succeeded may see the event again.
type Fanout []DeliveryHandler

func (f Fanout) Handle(ctx context.Context, env Envelope) error {
	var errs []error
	for _, h := range f {
		if err := h.Handle(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
