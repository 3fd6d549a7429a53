package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// newRepoDB opens a throwaway file-backed SQLite store and migrates the
// given models. Shared by every repo test in this package.
func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ana@Example.COM "); got != "ana@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}

func TestCreateAccount_Success_NormalizesAndDefaults(t *testing.T) {
	db := newRepoDB(t, &domain.Account{})

	a, err := CreateAccount(context.Background(), db, " Ana@Example.com ", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.ID == "" || a.Email != "ana@example.com" || a.SubscriptionStatus != domain.StatusTrial {
		t.Fatalf("unexpected Account fields: %+v", a)
	}

	// Duplicate email (different casing) hits the unique index.
	if _, err := CreateAccount(context.Background(), db, "ANA@example.com", nil); err == nil {
		t.Fatalf("expected unique violation for duplicate email")
	}
}

func TestGetAccountByEmail_CaseInsensitive_AndNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Account{})

	created, err := CreateAccount(context.Background(), db, "ana@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	got, err := GetAccountByEmail(context.Background(), db, "ANA@EXAMPLE.com")
	if err != nil || got.ID != created.ID {
		t.Fatalf("GetAccountByEmail: got=%+v err=%v", got, err)
	}

	if _, err := GetAccountByEmail(context.Background(), db, "none@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAccountStatus(t *testing.T) {
	db := newRepoDB(t, &domain.Account{})

	a, err := CreateAccount(context.Background(), db, "ana@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := UpdateAccountStatus(context.Background(), db, a.ID, domain.StatusActive); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}
	got, err := GetAccountByID(context.Background(), db, a.ID)
	if err != nil || got.SubscriptionStatus != domain.StatusActive {
		t.Fatalf("status not applied: got=%+v err=%v", got, err)
	}

	if err := UpdateAccountStatus(context.Background(), db, "missing", domain.StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing account, got %v", err)
	}
}

func TestAttachStripeCustomer_OnlyWhenUnset(t *testing.T) {
	db := newRepoDB(t, &domain.Account{})

	a, err := CreateAccount(context.Background(), db, "ana@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := AttachStripeCustomer(context.Background(), db, a.ID, "cus_1"); err != nil {
		t.Fatalf("AttachStripeCustomer: %v", err)
	}
	// A later attach must not overwrite the first customer id.
	if err := AttachStripeCustomer(context.Background(), db, a.ID, "cus_2"); err != nil {
		t.Fatalf("second AttachStripeCustomer: %v", err)
	}

	got, err := GetAccountByStripeCustomer(context.Background(), db, "cus_1")
	if err != nil || got.ID != a.ID {
		t.Fatalf("lookup by customer: got=%+v err=%v", got, err)
	}
	if _, err := GetAccountByStripeCustomer(context.Background(), db, "cus_2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cus_2 should not exist, got %v", err)
	}
}

func TestAddCharacterToAccount_IdempotentGrants(t *testing.T) {
	db := newRepoDB(t, &domain.Account{}, &domain.AccountCharacter{})

	a, err := CreateAccount(context.Background(), db, "ana@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := AddCharacterToAccount(context.Background(), db, a.ID, domain.CharacterSadie); err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
	}
	if err := AddCharacterToAccount(context.Background(), db, a.ID, domain.CharacterCole); err != nil {
		t.Fatalf("grant cole: %v", err)
	}

	grants, err := ListAccountCharacters(context.Background(), db, a.ID)
	if err != nil {
		t.Fatalf("ListAccountCharacters: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d (%+v)", len(grants), grants)
	}

	has, err := HasCharacterAccess(context.Background(), db, a.ID, domain.CharacterSadie)
	if err != nil || !has {
		t.Fatalf("HasCharacterAccess sadie: has=%v err=%v", has, err)
	}
	has, err = HasCharacterAccess(context.Background(), db, a.ID, domain.CharacterNora)
	if err != nil || has {
		t.Fatalf("HasCharacterAccess nora should be false: has=%v err=%v", has, err)
	}
}

func Test_isUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
	if !isUniqueViolation(errors.New("UNIQUE constraint failed: accounts.email")) {
		t.Fatalf("sqlite message should match")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm.ErrDuplicatedKey should match")
	}
	if isUniqueViolation(errors.New("some other error")) {
		t.Fatalf("unrelated error must not match")
	}
}
