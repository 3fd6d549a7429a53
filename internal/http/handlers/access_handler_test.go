package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/repo"
	"github.com/topfivefriends/companion-accounts/internal/services"
)

func newAccessRouter(access AccessService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(access, stubTrialSvc{}, stubLinkSvc{}, stubBillingSvc{}, "whsec_test", 25)
	r := gin.New()
	r.GET("/access/:chatId", h.ListAccess)
	r.GET("/access/:chatId/:character", h.CheckAccess)
	return r
}

func TestCheckAccess_UnknownCharacter_Internal_Success(t *testing.T) {
	// Unknown character -> 400
	{
		r := newAccessRouter(stubAccessSvc{})
		w := doJSON(t, r, http.MethodGet, "/access/42/zelda", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("unknown character -> %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), ErrCodeValidation) {
			t.Fatalf("body = %s", w.Body.String())
		}
	}

	// Service failure -> 500 with access_check_failed
	{
		r := newAccessRouter(stubAccessSvc{
			check: func(context.Context, string, domain.Character) (*services.AccessDecision, error) {
				return nil, errors.New("db down")
			},
		})
		w := doJSON(t, r, http.MethodGet, "/access/42/sadie", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("failure -> %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), ErrCodeAccessFailed) {
			t.Fatalf("body = %s", w.Body.String())
		}
	}

	// Success -> decision passed through verbatim
	{
		remaining := 7
		r := newAccessRouter(stubAccessSvc{
			check: func(_ context.Context, chatID string, character domain.Character) (*services.AccessDecision, error) {
				if chatID != "42" || character != domain.CharacterSadie {
					t.Fatalf("service got %q %q", chatID, character)
				}
				return &services.AccessDecision{
					HasAccess:      true,
					Reason:         services.ReasonTrial,
					TrialRemaining: &remaining,
				}, nil
			},
		})
		w := doJSON(t, r, http.MethodGet, "/access/42/sadie", "")
		if w.Code != http.StatusOK {
			t.Fatalf("success -> %d body=%s", w.Code, w.Body.String())
		}
		var out services.AccessDecision
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if !out.HasAccess || out.Reason != services.ReasonTrial || out.TrialRemaining == nil || *out.TrialRemaining != 7 {
			t.Fatalf("decision = %+v", out)
		}
	}
}

func TestListAccess_Success_Internal(t *testing.T) {
	// Linked account summary comes back as-is
	{
		r := newAccessRouter(stubAccessSvc{
			list: func(_ context.Context, chatID string) (*services.AccessSummary, error) {
				status := domain.StatusActive
				return &services.AccessSummary{
					HasAccount:         true,
					AccountID:          "acct-1",
					Email:              "a@b.co",
					SubscriptionStatus: &status,
					Characters:         []domain.Character{domain.CharacterSadie},
				}, nil
			},
		})
		w := doJSON(t, r, http.MethodGet, "/access/42", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list -> %d", w.Code)
		}
		var out services.AccessSummary
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if !out.HasAccount || out.AccountID != "acct-1" || len(out.Characters) != 1 {
			t.Fatalf("summary = %+v", out)
		}
	}

	// Service failure -> 500
	{
		r := newAccessRouter(stubAccessSvc{
			list: func(context.Context, string) (*services.AccessSummary, error) {
				return nil, errors.New("db down")
			},
		})
		w := doJSON(t, r, http.MethodGet, "/access/42", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("failure -> %d", w.Code)
		}
	}
}

// End-to-end over the real services and store, no stubs.
func TestAccessEndpoints_RealServices(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	trials := services.NewTrialService(db, 3)
	access := services.NewAccessService(db, trials)
	r := newAccessRouter(access)

	w := doJSON(t, r, http.MethodGet, "/access/42/sadie", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fresh access -> %d body=%s", w.Code, w.Body.String())
	}
	var d services.AccessDecision
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !d.HasAccess || d.Reason != services.ReasonTrial || *d.TrialRemaining != 3 {
		t.Fatalf("decision = %+v", d)
	}

	if _, err := repo.CreateAccount(context.Background(), db, "a@b.co", nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w = doJSON(t, r, http.MethodGet, "/access/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	var s services.AccessSummary
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("json: %v", err)
	}
	if s.HasAccount {
		t.Fatalf("unlinked chat reported an account: %+v", s)
	}
}
