package port

import (
	"context"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// OTPNotification carries a freshly issued code to the delivery layer.
type OTPNotification struct {
	Kind        domain.AccountKind
	AccountID   string
	Channel     domain.Channel
	Destination string
	Code        string
	ExpiresAt   time.Time
}

// OTPNotifier hands issued codes to an external delivery mechanism.
type OTPNotifier interface {
	SendOTP(ctx context.Context, notification OTPNotification) error
}
