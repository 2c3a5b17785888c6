package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/config"
	"github.com/arklim/marketplace-auth/internal/infra/logger"
	"github.com/arklim/marketplace-auth/internal/infra/security"
	"github.com/arklim/marketplace-auth/internal/infra/telemetry"
	"github.com/arklim/marketplace-auth/internal/repository"
)

const tracerName = "github.com/arklim/marketplace-auth/internal/usecase"

const (
	msgLoginSuccessful  = "Login successful"
	msgNotFullyVerified = "Email/Phone not fully verified yet."
	msgPendingApproval  = "Account pending approval by Super Admin."
	msgLoggedOut        = "Logged out"
)

// AuthService runs the register, verify, resend, login, refresh and logout flows
// for every account kind.
type AuthService struct {
	accounts port.AccountRepository
	otp      *OTPService
	ledger   *RefreshTokenLedger
	hasher   port.PasswordHasher
	tokens   port.TokenIssuer
	events   port.EventPublisher
	policy   *security.PasswordPolicy
	settings config.AuthSettings
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
	metrics  *telemetry.AuthMetrics
	tracer   trace.Tracer
}

// NewAuthService constructs an AuthService. The OTP policy is taken from otp.
func NewAuthService(
	accounts port.AccountRepository,
	otp *OTPService,
	ledger *RefreshTokenLedger,
	hasher port.PasswordHasher,
	tokens port.TokenIssuer,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		otp:      otp,
		ledger:   ledger,
		hasher:   hasher,
		tokens:   tokens,
		settings: otp.Settings(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		log:      zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
}

// WithEvents publishes lifecycle events through publisher.
func (s *AuthService) WithEvents(publisher port.EventPublisher) *AuthService {
	s.events = publisher
	return s
}

// WithPasswordPolicy validates registration passwords against policy.
func (s *AuthService) WithPasswordPolicy(policy *security.PasswordPolicy) *AuthService {
	s.policy = policy
	return s
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *AuthService) WithIDGenerator(newID func() string) *AuthService {
	if newID != nil {
		s.newID = newID
	}
	return s
}

func (s *AuthService) WithLogger(log *zap.Logger) *AuthService {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *AuthService) WithMetrics(metrics *telemetry.AuthMetrics) *AuthService {
	s.metrics = metrics
	return s
}

func (s *AuthService) WithTracer(tracer trace.Tracer) *AuthService {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// RegisterInput carries a signup request.
type RegisterInput struct {
	Kind     domain.AccountKind
	Name     string
	Email    string
	Phone    string
	Password string
}

// RegisterResult is returned after the account is created and both codes are issued.
// DevCodes is only populated when auth.expose_codes is enabled.
type RegisterResult struct {
	Account  domain.AccountView
	Message  string
	DevCodes map[domain.Channel]string
}

// Register creates an account with both channels unverified and issues an OTP per channel.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (result *RegisterResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Register", in.Kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	phone := domain.NormalizePhone(in.Phone)
	if name == "" || email == "" || phone == "" {
		if in.Kind.RequiresPassword() {
			return nil, domain.NewFailure(domain.FailureValidation, "name, email, phone, password required")
		}
		return nil, domain.NewFailure(domain.FailureValidation, "name, email, phone required")
	}
	if in.Password == "" && in.Kind.RequiresPassword() {
		return nil, domain.NewFailure(domain.FailureValidation, "Password required")
	}

	if existing, err := s.findAccount(ctx, in.Kind, "", email, ""); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.NewFailure(domain.FailureConflict, "Email already registered")
	}
	if existing, err := s.findAccount(ctx, in.Kind, "", "", phone); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.NewFailure(domain.FailureConflict, "Phone already registered")
	}

	var passwordHash string
	if in.Password != "" {
		if err := s.policy.Validate(in.Password, name, email, phone); err != nil {
			return nil, domain.NewFailure(domain.FailureValidation, "%s", err.Error())
		}
		passwordHash, err = s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	now := s.now()
	account := domain.Account{
		ID:           s.newID(),
		Kind:         in.Kind,
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			switch conflict.Field {
			case "email":
				return nil, domain.NewFailure(domain.FailureConflict, "Email already registered")
			case "phone":
				return nil, domain.NewFailure(domain.FailureConflict, "Phone already registered")
			}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	result = &RegisterResult{Account: account.View()}
	for _, channel := range []domain.Channel{domain.ChannelEmail, domain.ChannelPhone} {
		key := domain.OTPKey{Kind: account.Kind, AccountID: account.ID, Channel: channel}
		record, err := s.otp.IssueOrRefresh(ctx, key, account.Destination(channel), otpTriggerRegister)
		if err != nil {
			return nil, err
		}
		if s.settings.ExposeCodes {
			if result.DevCodes == nil {
				result.DevCodes = make(map[domain.Channel]string, 2)
			}
			result.DevCodes[channel] = record.Code
		}
	}

	s.publish(ctx, "account_registered", func(ctx context.Context) error {
		return s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Kind:         account.Kind,
			Email:        account.Email,
			Phone:        account.Phone,
			RegisteredAt: now,
		})
	})

	s.logFor(ctx).Info("account registered",
		zap.String("kind", account.Kind.String()),
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(email)),
		zap.String("phone", logger.MaskPhone(phone)),
	)

	result.Message = fmt.Sprintf("OTP sent to email (%s) and phone (%s). It will expire in %d minutes.",
		logger.MaskEmail(email), logger.MaskPhone(phone), s.otpMinutes())
	return result, nil
}

// VerifyInput carries a code for one channel. AccountID comes from a bearer token and takes
// precedence over the destination fields.
type VerifyInput struct {
	Kind      domain.AccountKind
	Channel   domain.Channel
	AccountID string
	Email     string
	Phone     string
	Code      string
}

type VerifyResult struct {
	Account domain.AccountView
	Message string
}

// Verify checks a code and marks the channel verified on success. Failed attempts are
// persisted before the failure is returned.
func (s *AuthService) Verify(ctx context.Context, in VerifyInput) (result *VerifyResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Verify", in.Kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}
	if !in.Channel.Valid() {
		return nil, domain.NewFailure(domain.FailureValidation, "Invalid channel")
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "code required")
	}

	destination := channelDestination(in.Channel, in.Email, in.Phone)
	if in.AccountID == "" && destination == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "Provide email or phone for verification")
	}

	var account *domain.Account
	if in.AccountID != "" {
		account, err = s.findAccount(ctx, in.Kind, in.AccountID, "", "")
		destination = ""
	} else if in.Channel == domain.ChannelEmail {
		account, err = s.findAccount(ctx, in.Kind, "", destination, "")
	} else {
		account, err = s.findAccount(ctx, in.Kind, "", "", destination)
	}
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.NewFailure(domain.FailureNotFound, "User not found")
	}

	lookup := domain.OTPLookup{
		Key:         domain.OTPKey{Kind: in.Kind, AccountID: account.ID, Channel: in.Channel},
		Destination: destination,
	}
	key, err := s.otp.Verify(ctx, lookup, code)
	if err != nil {
		s.logFor(ctx).Info("otp verification rejected",
			zap.String("kind", in.Kind.String()),
			zap.String("account_id", account.ID),
			zap.String("channel", in.Channel.String()),
			zap.Error(err),
		)
		return nil, err
	}

	updated, err := s.accounts.MarkChannelVerified(ctx, in.Kind, account.ID, in.Channel)
	if err != nil {
		return nil, fmt.Errorf("mark %s verified: %w", in.Channel, err)
	}
	if err := s.otp.Consume(ctx, key, code); err != nil {
		return nil, err
	}

	s.publish(ctx, "channel_verified", func(ctx context.Context) error {
		return s.events.PublishChannelVerified(ctx, domain.ChannelVerifiedEvent{
			EventID:       uuid.NewString(),
			AccountID:     updated.ID,
			Kind:          updated.Kind,
			Channel:       in.Channel,
			FullyVerified: updated.FullyVerified(),
			VerifiedAt:    s.now(),
		})
	})

	return &VerifyResult{
		Account: updated.View(),
		Message: fmt.Sprintf("%s verified", in.Channel),
	}, nil
}

// ResendInput identifies the account by bearer AccountID, then body UserID, then destination.
type ResendInput struct {
	Kind      domain.AccountKind
	Channel   domain.Channel
	AccountID string
	UserID    string
	Email     string
	Phone     string
}

type ResendResult struct {
	Message string
	DevCode string
}

// Resend replaces the current code for the channel, subject to the resend limit.
func (s *AuthService) Resend(ctx context.Context, in ResendInput) (result *ResendResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Resend", in.Kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}
	if !in.Channel.Valid() {
		return nil, domain.NewFailure(domain.FailureValidation, "Invalid channel")
	}

	id := in.AccountID
	if id == "" {
		id = strings.TrimSpace(in.UserID)
	}
	email := domain.NormalizeEmail(in.Email)
	phone := domain.NormalizePhone(in.Phone)
	if id == "" && channelDestination(in.Channel, email, phone) == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "userId or %s required", in.Channel)
	}

	account, err := s.findAccount(ctx, in.Kind, id, email, phone)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.NewFailure(domain.FailureNotFound, "User not found")
	}

	key := domain.OTPKey{Kind: account.Kind, AccountID: account.ID, Channel: in.Channel}
	record, err := s.otp.IssueOrRefresh(ctx, key, account.Destination(in.Channel), otpTriggerResend)
	if err != nil {
		return nil, err
	}

	result = &ResendResult{
		Message: fmt.Sprintf("OTP resent for %s. It will expire in %d minutes. You have %d resend(s) left.",
			in.Channel, s.otpMinutes(), s.otp.ResendsLeft(record)),
	}
	if s.settings.ExposeCodes {
		result.DevCode = record.Code
	}
	return result, nil
}

// LoginInput accepts email or phone; email wins when both are present.
type LoginInput struct {
	Kind     domain.AccountKind
	Email    string
	Phone    string
	Password string
}

type LoginResult struct {
	Account          domain.AccountView
	AccessToken      string
	RefreshToken     string
	ExpiresInMinutes int
	FullyVerified    bool
	Limited          bool
	Message          string
}

// Login checks credentials and issues an access token plus a ledgered refresh token.
// Unverified and unapproved accounts still receive tokens; the message tells them apart.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (result *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Login", in.Kind)
	defer func() {
		s.metrics.Login(in.Kind.String(), outcomeLabel(err))
		finishSpan(span, err)
	}()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(in.Email)
	phone := domain.NormalizePhone(in.Phone)
	if (email == "" && phone == "") || in.Password == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "email or phone and password required")
	}

	var account *domain.Account
	if email != "" {
		account, err = s.findAccount(ctx, in.Kind, "", email, "")
	} else {
		account, err = s.findAccount(ctx, in.Kind, "", "", phone)
	}
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, invalidCredentials()
	}

	if account.PasswordHash != "" {
		ok, err := s.hasher.Verify(in.Password, account.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, invalidCredentials()
		}
	}

	claims := domain.ClaimsFor(*account)
	accessToken, err := s.tokens.SignAccess(claims)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.tokens.SignRefresh(claims, s.settings.RefreshTokenDays)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if _, err := s.ledger.Append(ctx, account.Kind, account.ID, refreshToken, s.settings.RefreshTokenDays); err != nil {
		return nil, err
	}

	s.publish(ctx, "logged_in", func(ctx context.Context) error {
		return s.events.PublishAccountLoggedIn(ctx, domain.AccountLoggedInEvent{
			EventID:       uuid.NewString(),
			AccountID:     account.ID,
			Kind:          account.Kind,
			FullyVerified: claims.FullyVerified,
			Limited:       claims.Limited,
			LoggedInAt:    s.now(),
		})
	})

	return &LoginResult{
		Account:          account.View(),
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresInMinutes: accessTokenMinutes(),
		FullyVerified:    claims.FullyVerified,
		Limited:          claims.Limited,
		Message:          loginMessage(claims),
	}, nil
}

// RefreshInput carries the account id read from the (possibly expired) bearer token.
type RefreshInput struct {
	Kind         domain.AccountKind
	AccountID    string
	RefreshToken string
}

type RefreshResult struct {
	AccessToken      string
	ExpiresInMinutes int
}

// Refresh issues a new access token from the current account state. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (result *RefreshResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Refresh", in.Kind)
	defer func() {
		s.metrics.Refresh(in.Kind.String(), outcomeLabel(err))
		finishSpan(span, err)
	}()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}
	if in.AccountID == "" {
		return nil, domain.NewFailure(domain.FailureUnauthorized, "Unauthorized")
	}
	if in.RefreshToken == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "refreshToken required")
	}

	account, err := s.findAccount(ctx, in.Kind, in.AccountID, "", "")
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.NewFailure(domain.FailureNotFound, "User not found")
	}

	entry, err := s.ledger.FindLive(ctx, account.Kind, account.ID, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.NewFailure(domain.FailureInvalidRefreshToken, "Invalid refresh token")
	}

	accessToken, err := s.tokens.SignAccess(domain.ClaimsFor(*account))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &RefreshResult{AccessToken: accessToken, ExpiresInMinutes: accessTokenMinutes()}, nil
}

type LogoutInput struct {
	Kind         domain.AccountKind
	AccountID    string
	RefreshToken string
}

type LogoutResult struct {
	Message string
}

// Logout revokes the refresh token. Unknown accounts and tokens are treated as already logged out.
func (s *AuthService) Logout(ctx context.Context, in LogoutInput) (result *LogoutResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Logout", in.Kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(in.Kind); err != nil {
		return nil, err
	}
	if in.AccountID == "" {
		return nil, domain.NewFailure(domain.FailureUnauthorized, "Unauthorized")
	}
	if in.RefreshToken == "" {
		return nil, domain.NewFailure(domain.FailureValidation, "refreshToken required")
	}

	account, err := s.findAccount(ctx, in.Kind, in.AccountID, "", "")
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &LogoutResult{Message: msgLoggedOut}, nil
	}

	found, err := s.ledger.Revoke(ctx, account.Kind, account.ID, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	s.metrics.Logout(account.Kind.String())

	s.publish(ctx, "logged_out", func(ctx context.Context) error {
		return s.events.PublishAccountLoggedOut(ctx, domain.AccountLoggedOutEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Kind:       account.Kind,
			LoggedOut:  s.now(),
			TokenFound: found,
		})
	})

	return &LogoutResult{Message: msgLoggedOut}, nil
}

// SetApproval writes the confirmedAccount flag of a vendor or driver.
func (s *AuthService) SetApproval(ctx context.Context, kind domain.AccountKind, id string, confirmed bool) (view *domain.AccountView, err error) {
	ctx, span := s.startSpan(ctx, "auth.SetApproval", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if !kind.RequiresApproval() {
		return nil, domain.NewFailure(domain.FailureValidation, "%s accounts have no approval flag", kind)
	}

	account, err := s.accounts.SetConfirmed(ctx, kind, id, confirmed)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewFailure(domain.FailureNotFound, "User not found")
		}
		return nil, fmt.Errorf("set approval: %w", err)
	}

	s.logFor(ctx).Info("account approval changed",
		zap.String("kind", kind.String()),
		zap.String("account_id", id),
		zap.Bool("confirmed", confirmed),
	)

	out := account.View()
	return &out, nil
}

// Authenticate validates a bearer access token. With allowExpired the signature is still
// checked but an expired token is accepted and flagged. An empty kind accepts every kind.
func (s *AuthService) Authenticate(_ context.Context, raw string, kind domain.AccountKind, allowExpired bool) (*domain.VerifiedToken, error) {
	verified, err := s.tokens.Verify(raw, domain.TokenTypeAccess, allowExpired)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureUnauthorized, "Invalid token")
	}
	if kind != "" && verified.Claims.AccountKind != kind {
		return nil, domain.NewFailure(domain.FailureUnauthorized, "Invalid token")
	}
	return verified, nil
}

// findAccount resolves an account by id, then email, then phone. It returns nil when nothing matches.
func (s *AuthService) findAccount(ctx context.Context, kind domain.AccountKind, id, email, phone string) (*domain.Account, error) {
	type lookup struct {
		value string
		fetch func(context.Context, domain.AccountKind, string) (*domain.Account, error)
	}
	for _, l := range []lookup{
		{value: id, fetch: s.accounts.GetByID},
		{value: domain.NormalizeEmail(email), fetch: s.accounts.GetByEmail},
		{value: domain.NormalizePhone(phone), fetch: s.accounts.GetByPhone},
	} {
		if l.value == "" {
			continue
		}
		account, err := l.fetch(ctx, kind, l.value)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}
	}
	return nil, nil
}

func (s *AuthService) publish(ctx context.Context, event string, send func(context.Context) error) {
	if s.events == nil {
		return
	}
	if err := send(ctx); err != nil {
		s.logFor(ctx).Warn("publish event failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *AuthService) logFor(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}

func (s *AuthService) otpMinutes() int {
	return int(s.settings.OTPTTL / time.Minute)
}

func (s *AuthService) startSpan(ctx context.Context, name string, kind domain.AccountKind) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("account.kind", kind.String())))
}

// finishSpan records err on span. Tagged failures are expected outcomes and keep the span status unset.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		var failure *domain.Failure
		if errors.As(err, &failure) {
			span.SetAttributes(attribute.String("auth.failure", string(failure.Kind)))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var failure *domain.Failure
	if errors.As(err, &failure) {
		return string(failure.Kind)
	}
	return "error"
}

func requireKind(kind domain.AccountKind) error {
	if !kind.Valid() {
		return domain.NewFailure(domain.FailureValidation, "Invalid user type")
	}
	return nil
}

func invalidCredentials() error {
	return domain.NewFailure(domain.FailureInvalidCredentials, "Invalid credentials")
}

func channelDestination(channel domain.Channel, email, phone string) string {
	if channel == domain.ChannelPhone {
		return domain.NormalizePhone(phone)
	}
	return domain.NormalizeEmail(email)
}

func loginMessage(claims domain.TokenClaims) string {
	switch {
	case !claims.FullyVerified:
		return msgNotFullyVerified
	case claims.Limited:
		return msgPendingApproval
	default:
		return msgLoginSuccessful
	}
}

func accessTokenMinutes() int {
	return int(domain.AccessTokenTTL / time.Minute)
}
