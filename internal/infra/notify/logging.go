package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/logger"
)

// LoggingNotifier records OTP dispatches without delivering them.
// Destinations are masked; the code itself is only logged when includeCodes is set.
type LoggingNotifier struct {
	logger       *zap.Logger
	includeCodes bool
}

// NewLoggingNotifier constructs a notifier backed by structured logging. A nil logger discards everything.
func NewLoggingNotifier(log *zap.Logger, includeCodes bool) *LoggingNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingNotifier{logger: log, includeCodes: includeCodes}
}

func (n *LoggingNotifier) SendOTP(ctx context.Context, notification port.OTPNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	contact := logger.MaskEmail(notification.Destination)
	delivery := "email"
	if notification.Channel == domain.ChannelPhone {
		contact = logger.MaskPhone(notification.Destination)
		delivery = "sms"
	}

	fields := []zap.Field{
		zap.String("delivery", delivery),
		zap.String("contact", contact),
		zap.String("account_kind", notification.Kind.String()),
		zap.String("account_id", notification.AccountID),
		zap.Time("expires_at", notification.ExpiresAt),
	}
	if n.includeCodes {
		fields = append(fields, zap.String("dev_code", notification.Code))
	}

	n.logger.Info("dispatch otp", fields...)
	return nil
}

var _ port.OTPNotifier = (*LoggingNotifier)(nil)
