// internal/delivery/push.go
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/models"
)

// PushSender delivers rendered notifications to SNS platform endpoints. The
// address is the recipient's platform endpoint ARN.
type PushSender struct {
	sns SNSAPI
	log logger.Logger
}

func NewPushSender(snsClient SNSAPI, log logger.Logger) *PushSender {
	return &PushSender{sns: snsClient, log: log}
}

func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

func (s *PushSender) Send(ctx context.Context, address, subject, body string) error {
	if !strings.HasPrefix(address, "arn:") {
		return pkgerrors.NewInvalidRecipientError(address, "not a platform endpoint ARN")
	}

	payload, err := json.Marshal(map[string]string{
		"title": subject,
		"body":  body,
	})
	if err != nil {
		return pkgerrors.NewProviderSendFailedError(string(models.ChannelPush), err)
	}

	out, err := s.sns.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(address),
		Message:   aws.String(string(payload)),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.NewProviderTimeoutError(string(models.ChannelPush))
		}
		// A disabled endpoint means the device token is dead; retrying the
		// same ARN cannot succeed.
		if strings.Contains(strings.ToLower(err.Error()), "endpointdisabled") {
			return pkgerrors.NewInvalidRecipientError(address, "platform endpoint disabled")
		}
		return pkgerrors.NewProviderSendFailedError(string(models.ChannelPush), err)
	}

	s.log.Debug("Push sent", map[string]interface{}{
		"endpoint":  address,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}
