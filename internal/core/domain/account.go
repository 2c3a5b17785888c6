package domain

import (
	"strings"
	"time"
)

// AccountKind discriminates the three account populations served by the service.
type AccountKind string

const (
	AccountKindCustomer AccountKind = "customer"
	AccountKindVendor   AccountKind = "vendor"
	AccountKindDriver   AccountKind = "driver"
)

// AccountKinds lists every supported kind in routing order.
var AccountKinds = []AccountKind{AccountKindCustomer, AccountKindVendor, AccountKindDriver}

// ParseAccountKind converts a raw label into an AccountKind.
func ParseAccountKind(raw string) (AccountKind, bool) {
	kind := AccountKind(strings.ToLower(strings.TrimSpace(raw)))
	return kind, kind.Valid()
}

// Valid reports whether the kind is one of the supported kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindCustomer, AccountKindVendor, AccountKindDriver:
		return true
	default:
		return false
	}
}

// RequiresPassword reports whether accounts of this kind must carry a password hash.
func (k AccountKind) RequiresPassword() bool {
	return k == AccountKindVendor || k == AccountKindDriver
}

// RequiresApproval reports whether accounts of this kind are limited until confirmed by an admin.
func (k AccountKind) RequiresApproval() bool {
	return k == AccountKindVendor || k == AccountKindDriver
}

func (k AccountKind) String() string {
	return string(k)
}

// Account is the persisted shape shared by customers, vendors and drivers.
// Email and phone are unique within a kind.
type Account struct {
	ID               string
	Kind             AccountKind
	Name             string
	Email            string
	Phone            string
	PasswordHash     string
	EmailVerified    bool
	PhoneVerified    bool
	ConfirmedAccount bool
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullyVerified reports whether both channels have been confirmed.
func (a Account) FullyVerified() bool {
	return a.EmailVerified && a.PhoneVerified
}

// Limited reports whether the account still awaits admin approval.
func (a Account) Limited() bool {
	return a.Kind.RequiresApproval() && !a.ConfirmedAccount
}

// Destination returns the account contact for the supplied channel.
func (a Account) Destination(channel Channel) string {
	if channel == ChannelPhone {
		return a.Phone
	}
	return a.Email
}

// AccountView is the sanitized representation returned to callers.
type AccountView struct {
	ID               string      `json:"id"`
	UserType         AccountKind `json:"userType"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone"`
	EmailVerified    bool        `json:"emailVerified"`
	PhoneVerified    bool        `json:"phoneVerified"`
	ConfirmedAccount *bool       `json:"confirmedAccount,omitempty"`
	Active           bool        `json:"active"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// View strips credentials from the account and attaches its kind label.
func (a Account) View() AccountView {
	view := AccountView{
		ID:            a.ID,
		UserType:      a.Kind,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		EmailVerified: a.EmailVerified,
		PhoneVerified: a.PhoneVerified,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Kind.RequiresApproval() {
		confirmed := a.ConfirmedAccount
		view.ConfirmedAccount = &confirmed
	}
	return view
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims a phone number.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}
