package domain

import "time"

// AccountRegisteredEvent represents the payload for auth.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Kind         AccountKind
	Email        string
	Phone        string
	RegisteredAt time.Time
}

// ChannelVerifiedEvent represents the payload for auth.account.channel_verified messages.
type ChannelVerifiedEvent struct {
	EventID       string
	AccountID     string
	Kind          AccountKind
	Channel       Channel
	FullyVerified bool
	VerifiedAt    time.Time
}

// AccountLoggedInEvent represents the payload for auth.account.logged_in messages.
type AccountLoggedInEvent struct {
	EventID       string
	AccountID     string
	Kind          AccountKind
	FullyVerified bool
	Limited       bool
	LoggedInAt    time.Time
}

// AccountLoggedOutEvent represents the payload for auth.account.logged_out messages.
type AccountLoggedOutEvent struct {
	EventID    string
	AccountID  string
	Kind       AccountKind
	LoggedOut  time.Time
	TokenFound bool
}
