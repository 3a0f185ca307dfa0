// internal/delivery/sender.go

// Package delivery holds the channel senders. Each sender delivers one
// rendered message to one address; retry policy lives with the queue, not
// here.
package delivery

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"matrimony-pipeline/internal/models"
)

// ChannelSender delivers one rendered message. Implementations classify
// provider failures into the pipeline error taxonomy so callers can decide
// between retry, terminal failure and the opt-out sync.
type ChannelSender interface {
	Channel() models.Channel
	Send(ctx context.Context, address, subject, body string) error
}

// SESAPI is the slice of the SES client the email sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI is the slice of the SNS client the SMS and push senders need.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}
