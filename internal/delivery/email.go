// internal/delivery/email.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/models"
)

// EmailSender delivers rendered notifications through SES.
type EmailSender struct {
	ses       SESAPI
	fromEmail string
	fromName  string
	log       logger.Logger
}

func NewEmailSender(sesClient SESAPI, fromEmail, fromName string, log logger.Logger) *EmailSender {
	return &EmailSender{
		ses:       sesClient,
		fromEmail: fromEmail,
		fromName:  fromName,
		log:       log,
	}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers one email. The rendered body is sent as both HTML and text
// so plain-text clients stay readable.
func (s *EmailSender) Send(ctx context.Context, address, subject, body string) error {
	if !strings.Contains(address, "@") {
		return pkgerrors.NewInvalidRecipientError(address, "not an email address")
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination: &types.Destination{ToAddresses: []string{address}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	}

	out, err := s.ses.SendEmail(ctx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.NewProviderTimeoutError(string(models.ChannelEmail))
		}
		return pkgerrors.NewProviderSendFailedError(string(models.ChannelEmail), err)
	}

	s.log.Debug("Email sent", map[string]interface{}{
		"to":        address,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}
