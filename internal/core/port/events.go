package port

import (
	"context"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// EventPublisher publishes account lifecycle events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishChannelVerified(ctx context.Context, event domain.ChannelVerifiedEvent) error
	PublishAccountLoggedIn(ctx context.Context, event domain.AccountLoggedInEvent) error
	PublishAccountLoggedOut(ctx context.Context, event domain.AccountLoggedOutEvent) error
}
