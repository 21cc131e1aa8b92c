package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

const (
	sqsWaitTimeSeconds     = 20
	sqsMaxMessages         = 10
	sqsReceiveErrorBackoff = 5 * time.Second
	dedupeSettleTimeout    = 5 * time.Second
)

// SQSAPI is the subset of the SQS client used by the queue and consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue publishes notifications to an SQS queue for the worker process.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSQueue(client SQSAPI, queueURL string) (*SQSQueue, error) {
	if client == nil || strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("%w: sqs client and queue url required", ErrInvalidConfig)
	}
	return &SQSQueue{client: client, queueURL: queueURL}, nil
}

func (queue *SQSQueue) Enqueue(ctx context.Context, notification travel.Notification) error {
	message, err := NewMessage(notification)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = queue.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queue.queueURL),
		MessageBody: aws.String(string(encoded)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// SQSConsumer drains the notification queue. Messages are deleted only after a successful
// send, so delivery is at least once; the deduper suppresses repeats of a
// message that was already sent.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	sender   Sender
	deduper  Deduper
	logger   *zap.Logger
}

// NewSQSConsumer builds a consumer. deduper may be nil.
func NewSQSConsumer(client SQSAPI, queueURL string, sender Sender, deduper Deduper, logger *zap.Logger) (*SQSConsumer, error) {
	if client == nil || strings.TrimSpace(queueURL) == "" || sender == nil {
		return nil, fmt.Errorf("%w: sqs client, queue url and sender required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSConsumer{client: client, queueURL: queueURL, sender: sender, deduper: deduper, logger: logger}, nil
}

// Run polls until ctx is cancelled.
func (consumer *SQSConsumer) Run(ctx context.Context) error {
	consumer.logger.Info("listening for notifications", zap.String("queue_url", consumer.queueURL))
	for {
		if ctx.Err() != nil {
			return nil
		}
		processed, err := consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consumer.logger.Error("sqs receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sqsReceiveErrorBackoff):
			}
			continue
		}
		if processed > 0 {
			consumer.logger.Debug("notification batch processed", zap.Int("count", processed))
		}
	}
}

// Poll receives one batch and handles every message in it.
func (consumer *SQSConsumer) Poll(ctx context.Context) (int, error) {
	output, err := consumer.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(consumer.queueURL),
		WaitTimeSeconds:     sqsWaitTimeSeconds,
		MaxNumberOfMessages: sqsMaxMessages,
	})
	if err != nil {
		return 0, err
	}
	for _, received := range output.Messages {
		consumer.handle(ctx, received)
	}
	return len(output.Messages), nil
}

func (consumer *SQSConsumer) handle(ctx context.Context, received sqstypes.Message) {
	var message Message
	if err := json.Unmarshal([]byte(aws.ToString(received.Body)), &message); err != nil || message.Validate() != nil {
		consumer.logger.Error("discarding malformed notification",
			zap.String("sqs_message_id", aws.ToString(received.MessageId)),
			zap.Error(errors.Join(err, ErrInvalidMessage)),
		)
		consumer.delete(ctx, received)
		return
	}

	key := message.DedupeKey()
	claimed := false
	if consumer.deduper != nil {
		state, err := consumer.deduper.Claim(ctx, key)
		switch {
		case err != nil:
			consumer.logger.Warn("dedupe claim failed; sending anyway", zap.String("message_id", message.ID), zap.Error(err))
		case state == ClaimDelivered:
			consumer.logger.Info("duplicate notification skipped", zap.String("message_id", message.ID))
			consumer.delete(ctx, received)
			return
		case state == ClaimInFlight:
			consumer.logger.Info("notification already in flight; leaving for redelivery", zap.String("message_id", message.ID))
			return
		default:
			claimed = true
		}
	}

	sendErr := consumer.sender.Send(ctx, message)

	// Bookkeeping must land even when the poll context was cancelled mid-send.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupeSettleTimeout)
	defer cancel()

	if sendErr != nil {
		consumer.logger.Warn("notification send failed; leaving for redelivery",
			zap.String("message_id", message.ID),
			zap.Error(sendErr),
		)
		if claimed {
			if releaseErr := consumer.deduper.Release(settleCtx, key); releaseErr != nil {
				consumer.logger.Warn("dedupe release failed", zap.String("message_id", message.ID), zap.Error(releaseErr))
			}
		}
		return
	}
	if claimed {
		if markErr := consumer.deduper.MarkDelivered(settleCtx, key); markErr != nil {
			consumer.logger.Warn("dedupe mark failed", zap.String("message_id", message.ID), zap.Error(markErr))
		}
	}
	consumer.delete(settleCtx, received)
}

func (consumer *SQSConsumer) delete(ctx context.Context, received sqstypes.Message) {
	_, err := consumer.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(consumer.queueURL),
		ReceiptHandle: received.ReceiptHandle,
	})
	if err != nil {
		consumer.logger.Warn("sqs delete failed", zap.String("sqs_message_id", aws.ToString(received.MessageId)), zap.Error(err))
	}
}
