package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/repo"
	"github.com/topfivefriends/companion-accounts/internal/services"
)

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- flexible service stubs ----------

type stubAccessSvc struct {
	check func(context.Context, string, domain.Character) (*services.AccessDecision, error)
	list  func(context.Context, string) (*services.AccessSummary, error)
}

func (s stubAccessSvc) CheckAccess(ctx context.Context, chatID string, character domain.Character) (*services.AccessDecision, error) {
	if s.check != nil {
		return s.check(ctx, chatID, character)
	}
	return &services.AccessDecision{HasAccess: true, Reason: services.ReasonTrial}, nil
}

func (s stubAccessSvc) ListAccess(ctx context.Context, chatID string) (*services.AccessSummary, error) {
	if s.list != nil {
		return s.list(ctx, chatID)
	}
	return &services.AccessSummary{Characters: []domain.Character{}}, nil
}

type stubTrialSvc struct {
	ensure  func(context.Context, string, domain.Character) (*domain.Trial, error)
	consume func(context.Context, string, domain.Character) (int, error)
}

func (s stubTrialSvc) Ensure(ctx context.Context, chatID string, character domain.Character) (*domain.Trial, error) {
	if s.ensure != nil {
		return s.ensure(ctx, chatID, character)
	}
	return &domain.Trial{ChatID: chatID, Character: character, MessagesRemaining: 25}, nil
}

func (s stubTrialSvc) Consume(ctx context.Context, chatID string, character domain.Character) (int, error) {
	if s.consume != nil {
		return s.consume(ctx, chatID, character)
	}
	return 24, nil
}

type stubLinkSvc struct {
	initiate func(context.Context, string, string, domain.Character, string) (string, error)
	verify   func(context.Context, string) (*domain.PendingLink, error)
	complete func(context.Context, string, []domain.Character, *string) (string, error)
}

func (s stubLinkSvc) Initiate(ctx context.Context, email, chatID string, character domain.Character, firstName string) (string, error) {
	if s.initiate != nil {
		return s.initiate(ctx, email, chatID, character, firstName)
	}
	return "tok", nil
}

func (s stubLinkSvc) Verify(ctx context.Context, token string) (*domain.PendingLink, error) {
	if s.verify != nil {
		return s.verify(ctx, token)
	}
	return &domain.PendingLink{Token: token}, nil
}

func (s stubLinkSvc) Complete(ctx context.Context, token string, characters []domain.Character, stripeCustomerID *string) (string, error) {
	if s.complete != nil {
		return s.complete(ctx, token, characters, stripeCustomerID)
	}
	return "acct-1", nil
}

type stubBillingSvc struct {
	createSession func(context.Context, *domain.PendingLink, int, []domain.Character, string, string) (string, string, error)
	markProcessed func(context.Context, string, string) (bool, error)
	unmark        func(context.Context, string) error
	checkout      func(context.Context, services.CheckoutCompleted) error
	subUpsert     func(context.Context, string, string, *time.Time, *time.Time) error
	subDeleted    func(context.Context, string) error
	invoicePaid   func(context.Context, string, *time.Time) error
	invoiceFailed func(context.Context, string) error
	view          func(context.Context, string) (*services.SubscriptionView, error)
}

func (s stubBillingSvc) CreateCheckoutSession(ctx context.Context, pending *domain.PendingLink, tier int, characters []domain.Character, successURL, cancelURL string) (string, string, error) {
	if s.createSession != nil {
		return s.createSession(ctx, pending, tier, characters, successURL, cancelURL)
	}
	return "cs_1", "https://checkout.test/cs_1", nil
}

func (s stubBillingSvc) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if s.markProcessed != nil {
		return s.markProcessed(ctx, eventID, eventType)
	}
	return true, nil
}

func (s stubBillingSvc) UnmarkEvent(ctx context.Context, eventID string) error {
	if s.unmark != nil {
		return s.unmark(ctx, eventID)
	}
	return nil
}

func (s stubBillingSvc) HandleCheckoutCompleted(ctx context.Context, ev services.CheckoutCompleted) error {
	if s.checkout != nil {
		return s.checkout(ctx, ev)
	}
	return nil
}

func (s stubBillingSvc) HandleSubscriptionUpsert(ctx context.Context, subscriptionID, status string, periodStart, periodEnd *time.Time) error {
	if s.subUpsert != nil {
		return s.subUpsert(ctx, subscriptionID, status, periodStart, periodEnd)
	}
	return nil
}

func (s stubBillingSvc) HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error {
	if s.subDeleted != nil {
		return s.subDeleted(ctx, subscriptionID)
	}
	return nil
}

func (s stubBillingSvc) HandleInvoicePaid(ctx context.Context, subscriptionID string, periodEnd *time.Time) error {
	if s.invoicePaid != nil {
		return s.invoicePaid(ctx, subscriptionID, periodEnd)
	}
	return nil
}

func (s stubBillingSvc) HandleInvoicePaymentFailed(ctx context.Context, subscriptionID string) error {
	if s.invoiceFailed != nil {
		return s.invoiceFailed(ctx, subscriptionID)
	}
	return nil
}

func (s stubBillingSvc) GetSubscriptionView(ctx context.Context, accountID string) (*services.SubscriptionView, error) {
	if s.view != nil {
		return s.view(ctx, accountID)
	}
	return &services.SubscriptionView{Characters: []domain.Character{}}, nil
}

// ---------- request helper ----------

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}
