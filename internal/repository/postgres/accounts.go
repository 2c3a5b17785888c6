package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

const uniqueViolation = "23505"

var accountColumns = []string{
	"id",
	"kind",
	"name",
	"email",
	"phone",
	"password_hash",
	"email_verified",
	"phone_verified",
	"confirmed_account",
	"active",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountRepository using the auth.accounts table.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{exec: tx, builder: r.builder}
}

// Create inserts a new account. Unique violations surface as *repository.ConflictError.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	stmt, args, err := r.builder.Insert("auth.accounts").
		Columns(accountColumns...).
		Values(
			account.ID,
			string(account.Kind),
			account.Name,
			account.Email,
			account.Phone,
			passwordHash,
			account.EmailVerified,
			account.PhoneVerified,
			account.ConfirmedAccount,
			account.Active,
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &repository.ConflictError{Field: conflictField(pgErr.ConstraintName)}
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, kind domain.AccountKind, id string) (*domain.Account, error) {
	return r.getBy(ctx, kind, "id", id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, kind domain.AccountKind, email string) (*domain.Account, error) {
	return r.getBy(ctx, kind, "email", email)
}

func (r *AccountRepository) GetByPhone(ctx context.Context, kind domain.AccountKind, phone string) (*domain.Account, error) {
	return r.getBy(ctx, kind, "phone", phone)
}

func (r *AccountRepository) getBy(ctx context.Context, kind domain.AccountKind, column, value string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Eq{"kind": string(kind), column: value}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// MarkChannelVerified sets the verified flag of channel and returns the updated row.
func (r *AccountRepository) MarkChannelVerified(ctx context.Context, kind domain.AccountKind, id string, channel domain.Channel) (*domain.Account, error) {
	column := "email_verified"
	if channel == domain.ChannelPhone {
		column = "phone_verified"
	}

	return r.update(ctx, kind, id, column, true)
}

func (r *AccountRepository) SetConfirmed(ctx context.Context, kind domain.AccountKind, id string, confirmed bool) (*domain.Account, error) {
	return r.update(ctx, kind, id, "confirmed_account", confirmed)
}

func (r *AccountRepository) update(ctx context.Context, kind domain.AccountKind, id, column string, value bool) (*domain.Account, error) {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set(column, value).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"kind": string(kind), "id": id}).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update account sql: %w", err)
	}

	return scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account      domain.Account
		kind         string
		passwordHash sql.NullString
	)

	if err := row.Scan(
		&account.ID,
		&kind,
		&account.Name,
		&account.Email,
		&account.Phone,
		&passwordHash,
		&account.EmailVerified,
		&account.PhoneVerified,
		&account.ConfirmedAccount,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Kind = domain.AccountKind(kind)
	if passwordHash.Valid {
		account.PasswordHash = passwordHash.String
	}

	return &account, nil
}

func conflictField(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return "email"
	case strings.Contains(constraint, "phone"):
		return "phone"
	default:
		return "id"
	}
}
