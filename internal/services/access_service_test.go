package services

import (
	"context"
	"testing"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

func TestAccessService_CheckAccess_Subscribed(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAccessService(db, NewTrialService(db, 25))
	ctx := context.Background()

	account, err := repo.CreateAccount(ctx, db, "sub@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.UpdateAccountStatus(ctx, db, account.ID, domain.StatusActive); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}
	if err := repo.AddCharacterToAccount(ctx, db, account.ID, domain.CharacterSadie); err != nil {
		t.Fatalf("AddCharacterToAccount: %v", err)
	}
	if _, err := repo.UpsertTelegramLink(ctx, db, "chat-sub", account.ID, domain.CharacterSadie); err != nil {
		t.Fatalf("UpsertTelegramLink: %v", err)
	}

	d, err := svc.CheckAccess(ctx, "chat-sub", domain.CharacterSadie)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.HasAccess || d.Reason != ReasonSubscribed {
		t.Fatalf("decision = %+v, want subscribed grant", d)
	}
	if d.AccountID != account.ID || d.Email != "sub@example.com" {
		t.Fatalf("account context missing: %+v", d)
	}
	if d.TrialRemaining != nil {
		t.Fatalf("subscribed decision should not expose trial counter: %+v", d)
	}
}

func TestAccessService_CheckAccess_ActiveWithoutGrant(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAccessService(db, NewTrialService(db, 25))
	ctx := context.Background()

	account, err := repo.CreateAccount(ctx, db, "partial@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.UpdateAccountStatus(ctx, db, account.ID, domain.StatusActive); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}
	if err := repo.AddCharacterToAccount(ctx, db, account.ID, domain.CharacterSadie); err != nil {
		t.Fatalf("AddCharacterToAccount: %v", err)
	}
	if _, err := repo.UpsertTelegramLink(ctx, db, "chat-partial", account.ID, domain.CharacterSadie); err != nil {
		t.Fatalf("UpsertTelegramLink: %v", err)
	}

	d, err := svc.CheckAccess(ctx, "chat-partial", domain.CharacterCole)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if d.HasAccess || d.Reason != ReasonNoAccess {
		t.Fatalf("decision = %+v, want no_access denial", d)
	}
	if d.AccountID != account.ID {
		t.Fatalf("denial should carry the account for upgrade prompts: %+v", d)
	}
}

func TestAccessService_CheckAccess_TrialPaths(t *testing.T) {
	db := newServiceDB(t)
	trials := NewTrialService(db, 2)
	svc := NewAccessService(db, trials)
	ctx := context.Background()

	// Unknown chat falls to the trial meter and lazily creates the row.
	d, err := svc.CheckAccess(ctx, "chat-trial", domain.CharacterElliott)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.HasAccess || d.Reason != ReasonTrial {
		t.Fatalf("decision = %+v, want trial grant", d)
	}
	if d.TrialRemaining == nil || *d.TrialRemaining != 2 {
		t.Fatalf("TrialRemaining = %v, want 2", d.TrialRemaining)
	}

	// Checking access never consumes a message.
	d, err = svc.CheckAccess(ctx, "chat-trial", domain.CharacterElliott)
	if err != nil {
		t.Fatalf("second CheckAccess: %v", err)
	}
	if *d.TrialRemaining != 2 {
		t.Fatalf("CheckAccess consumed a message: %d", *d.TrialRemaining)
	}

	// Exhaust the trial; the decision flips to trial_expired.
	for i := 0; i < 2; i++ {
		if _, err := trials.Consume(ctx, "chat-trial", domain.CharacterElliott); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	d, err = svc.CheckAccess(ctx, "chat-trial", domain.CharacterElliott)
	if err != nil {
		t.Fatalf("exhausted CheckAccess: %v", err)
	}
	if d.HasAccess || d.Reason != ReasonTrialExpired {
		t.Fatalf("decision = %+v, want trial_expired denial", d)
	}
	if d.TrialRemaining == nil || *d.TrialRemaining != 0 {
		t.Fatalf("TrialRemaining = %v, want 0", d.TrialRemaining)
	}
}

func TestAccessService_CheckAccess_CanceledAccountFallsToTrial(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAccessService(db, NewTrialService(db, 10))
	ctx := context.Background()

	account, err := repo.CreateAccount(ctx, db, "lapsed@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.UpdateAccountStatus(ctx, db, account.ID, domain.StatusCanceled); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}
	if _, err := repo.UpsertTelegramLink(ctx, db, "chat-lapsed", account.ID, domain.CharacterSean); err != nil {
		t.Fatalf("UpsertTelegramLink: %v", err)
	}

	d, err := svc.CheckAccess(ctx, "chat-lapsed", domain.CharacterSean)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.HasAccess || d.Reason != ReasonTrial {
		t.Fatalf("decision = %+v, want trial fallback", d)
	}
	// The known account still rides along with the trial decision.
	if d.AccountID != account.ID || d.Email != "lapsed@example.com" {
		t.Fatalf("account context missing: %+v", d)
	}
}

func TestAccessService_ListAccess(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAccessService(db, NewTrialService(db, 25))
	ctx := context.Background()

	// No link resolves to the explicit no-account shape.
	s, err := svc.ListAccess(ctx, "chat-none")
	if err != nil {
		t.Fatalf("ListAccess: %v", err)
	}
	if s.HasAccount || s.AccountID != "" || s.SubscriptionStatus != nil {
		t.Fatalf("unlinked summary = %+v", s)
	}
	if s.Characters == nil || len(s.Characters) != 0 {
		t.Fatalf("Characters should be empty, not nil: %+v", s.Characters)
	}

	account, err := repo.CreateAccount(ctx, db, "list@example.com", nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.UpdateAccountStatus(ctx, db, account.ID, domain.StatusActive); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}
	for _, c := range []domain.Character{domain.CharacterSadie, domain.CharacterNora} {
		if err := repo.AddCharacterToAccount(ctx, db, account.ID, c); err != nil {
			t.Fatalf("AddCharacterToAccount %s: %v", c, err)
		}
	}
	if _, err := repo.UpsertTelegramLink(ctx, db, "chat-list", account.ID, domain.CharacterSadie); err != nil {
		t.Fatalf("UpsertTelegramLink: %v", err)
	}

	s, err = svc.ListAccess(ctx, "chat-list")
	if err != nil {
		t.Fatalf("ListAccess linked: %v", err)
	}
	if !s.HasAccount || s.AccountID != account.ID || s.Email != "list@example.com" {
		t.Fatalf("linked summary = %+v", s)
	}
	if s.SubscriptionStatus == nil || *s.SubscriptionStatus != domain.StatusActive {
		t.Fatalf("SubscriptionStatus = %v", s.SubscriptionStatus)
	}
	if len(s.Characters) != 2 {
		t.Fatalf("Characters = %v, want 2 grants", s.Characters)
	}
}
