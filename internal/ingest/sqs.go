package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// SQSAPI is the subset of *sqs.Client the consumer calls.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body string) error

// Consumer long-polls an SQS queue and hands each message to Handle.
// Messages are deleted when Handle returns nil or an ErrPermanent error;
// otherwise they reappear after the visibility timeout.
type Consumer struct {
	Client      SQSAPI
	QueueURL    string
	Handle      HandlerFunc
	WaitTime    time.Duration // long-poll wait, max 20s
	MaxMessages int32         // 1..10
	Visibility  time.Duration
	RetryDelay  time.Duration // pause after a receive error (5s)
}

// Run polls until ctx is canceled and then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	lg := log.With().Str("component", "sqs-consumer").Str("queue", c.QueueURL).Logger()
	lg.Info().Msg("consumer started")
	defer lg.Info().Msg("consumer stopped")

	delay := c.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lg.Warn().Err(err).Dur("retry_in", delay).Msg("receive failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Poll performs one receive and processes the batch. It returns the number
// of messages deleted.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	out, err := c.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.QueueURL),
		MaxNumberOfMessages: c.maxMessages(),
		WaitTimeSeconds:     int32(c.WaitTime / time.Second),
		VisibilityTimeout:   int32(c.Visibility / time.Second),
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, m := range out.Messages {
		if c.process(ctx, m) {
			deleted++
		}
	}
	return deleted, nil
}

func (c *Consumer) process(ctx context.Context, m types.Message) bool {
	id := aws.ToString(m.MessageId)
	lg := log.With().Str("component", "sqs-consumer").Str("message_id", id).Logger()

	if m.Body == nil {
		lg.Warn().Msg("empty message body, deleting")
		return c.delete(ctx, m.ReceiptHandle)
	}
	err := c.Handle(ctx, *m.Body)
	switch {
	case err == nil:
		return c.delete(ctx, m.ReceiptHandle)
	case errors.Is(err, ErrPermanent):
		lg.Warn().Err(err).Msg("dropping unprocessable gate event")
		return c.delete(ctx, m.ReceiptHandle)
	default:
		lg.Error().Err(err).Msg("gate event failed, leaving for redelivery")
		return false
	}
}

func (c *Consumer) delete(ctx context.Context, receipt *string) bool {
	if receipt == nil {
		log.Warn().Str("component", "sqs-consumer").Msg("missing receipt handle, cannot delete")
		return false
	}
	if _, err := c.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.QueueURL),
		ReceiptHandle: receipt,
	}); err != nil {
		log.Error().Err(err).Str("component", "sqs-consumer").Msg("delete failed")
		return false
	}
	return true
}

func (c *Consumer) maxMessages() int32 {
	switch {
	case c.MaxMessages < 1:
		return 1
	case c.MaxMessages > 10:
		return 10
	default:
		return c.MaxMessages
	}
}
