// internal/delivery/sms.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/redis/go-redis/v9"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/models"
)

// smsBudgetKeyPrefix keys the per-day spend counter in Redis. Days roll over
// at UTC midnight.
const smsBudgetKeyPrefix = "sms:spend:"

// ErrDailyBudgetExceeded stops a drain pass before the provider call when
// today's projected SMS spend would cross the configured limit. The records
// stay pending and are retried once the budget resets.
var ErrDailyBudgetExceeded = errors.New("sms daily cost budget exceeded")

// SMSSender delivers rendered notifications through SNS as transactional SMS.
// Spend is capped per UTC day; the counter lives in Redis so a restart does
// not reset the budget.
type SMSSender struct {
	sns            SNSAPI
	redis          redis.Cmdable
	senderID       string
	costPerMessage float64
	dailyCostLimit float64
	log            logger.Logger
}

func NewSMSSender(snsClient SNSAPI, redisClient redis.Cmdable, senderID string, costPerMessage, dailyCostLimit float64, log logger.Logger) *SMSSender {
	return &SMSSender{
		sns:            snsClient,
		redis:          redisClient,
		senderID:       senderID,
		costPerMessage: costPerMessage,
		dailyCostLimit: dailyCostLimit,
		log:            log,
	}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

// Send delivers one SMS. Subject is unused; SMS has no subject line.
func (s *SMSSender) Send(ctx context.Context, address, _, body string) error {
	if !strings.HasPrefix(address, "+") {
		return pkgerrors.NewInvalidRecipientError(address, "phone number must be E.164")
	}

	if err := s.reserveBudget(ctx); err != nil {
		return err
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(address),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}

	out, err := s.sns.Publish(ctx, input)
	if err != nil {
		return classifySMSError(address, err)
	}

	s.log.Debug("SMS sent", map[string]interface{}{
		"to":        address,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}

// reserveBudget adds one message's cost to today's counter and rejects the
// send when the running total crosses the limit. The increment is kept even
// on rejection; over-counting by one reservation is acceptable, silently
// exceeding the budget is not.
func (s *SMSSender) reserveBudget(ctx context.Context) error {
	if s.redis == nil || s.dailyCostLimit <= 0 {
		return nil
	}
	key := smsBudgetKeyPrefix + time.Now().UTC().Format("2006-01-02")
	total, err := s.redis.IncrByFloat(ctx, key, s.costPerMessage).Result()
	if err != nil {
		// Budget tracking is advisory; a Redis outage must not block delivery.
		s.log.Warn("SMS budget counter unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	s.redis.Expire(ctx, key, 48*time.Hour)
	if total > s.dailyCostLimit {
		s.log.Warn("SMS daily budget exhausted", map[string]interface{}{
			"spend": fmt.Sprintf("%.4f", total),
			"limit": fmt.Sprintf("%.4f", s.dailyCostLimit),
		})
		return ErrDailyBudgetExceeded
	}
	return nil
}

// classifySMSError maps provider failures onto the pipeline taxonomy. A
// carrier-level opt-out is authoritative; callers must sync the recipient's
// preference and fail the record without retry.
func classifySMSError(address string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.NewProviderTimeoutError(string(models.ChannelSMS))
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "opted out") {
		return pkgerrors.NewRecipientOptedOutError(address, err)
	}
	if strings.Contains(msg, "invalid parameter") && strings.Contains(msg, "phone") {
		return pkgerrors.NewInvalidRecipientError(address, err.Error())
	}
	return pkgerrors.NewProviderSendFailedError(string(models.ChannelSMS), err)
}
