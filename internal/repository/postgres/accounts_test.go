package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

func accountRows(account domain.Account) *pgxmock.Rows {
	var hash any
	if account.PasswordHash != "" {
		hash = account.PasswordHash
	}
	return pgxmock.NewRows(accountColumns).AddRow(
		account.ID,
		string(account.Kind),
		account.Name,
		account.Email,
		account.Phone,
		hash,
		account.EmailVerified,
		account.PhoneVerified,
		account.ConfirmedAccount,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestAccountRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)
	now := time.Now().UTC()
	account := domain.Account{
		ID:        "acc-1",
		Kind:      domain.AccountKindCustomer,
		Name:      "Alice",
		Email:     "a@x.com",
		Phone:     "5551234567",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO auth\.accounts`).
		WithArgs("acc-1", "customer", "Alice", "a@x.com", "5551234567", (*string)(nil), false, false, false, true, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_CreateConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`INSERT INTO auth\.accounts`).
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "accounts_kind_phone_key"})

	err = repo.Create(context.Background(), domain.Account{ID: "acc-2", Kind: domain.AccountKindDriver})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var conflict *repository.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "phone" {
		t.Fatalf("expected phone conflict, got %v", err)
	}
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)
	now := time.Now().UTC()
	stored := domain.Account{
		ID:           "acc-3",
		Kind:         domain.AccountKindVendor,
		Name:         "Shop",
		Email:        "shop@x.com",
		Phone:        "5550000000",
		PasswordHash: "argon2id$...",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectQuery(`SELECT .* FROM auth\.accounts WHERE email = \$1 AND kind = \$2 LIMIT 1`).
		WithArgs("shop@x.com", "vendor").
		WillReturnRows(accountRows(stored))

	account, err := repo.GetByEmail(context.Background(), domain.AccountKindVendor, "shop@x.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if account.Kind != domain.AccountKindVendor || account.PasswordHash != stored.PasswordHash {
		t.Fatalf("unexpected account: %+v", account)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM auth\.accounts`).
		WithArgs("missing", "customer").
		WillReturnRows(pgxmock.NewRows(accountColumns))

	if _, err := repo.GetByID(context.Background(), domain.AccountKindCustomer, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountRepository_MarkChannelVerified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)
	now := time.Now().UTC()
	updated := domain.Account{
		ID:            "acc-4",
		Kind:          domain.AccountKindCustomer,
		Email:         "a@x.com",
		Phone:         "5551234567",
		PhoneVerified: true,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	mock.ExpectQuery(`UPDATE auth\.accounts SET phone_verified = \$1, updated_at = NOW\(\) WHERE id = \$2 AND kind = \$3 RETURNING`).
		WithArgs(true, "acc-4", "customer").
		WillReturnRows(accountRows(updated))

	account, err := repo.MarkChannelVerified(context.Background(), domain.AccountKindCustomer, "acc-4", domain.ChannelPhone)
	if err != nil {
		t.Fatalf("MarkChannelVerified returned error: %v", err)
	}
	if !account.PhoneVerified {
		t.Fatal("expected phone verified flag")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateAppliesSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	for range schemaStatements {
		mock.ExpectExec(`CREATE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	if err := migrate(context.Background(), mock); err != nil {
		t.Fatalf("migrate returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
