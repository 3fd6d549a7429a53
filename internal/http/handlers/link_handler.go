// Magic-link HTTP handlers.
//
// This file exposes REST endpoints for the account-linking flow:
//   - POST /link/initiate        (send magic link email)
//   - GET  /link/verify/{token}  (peek pending link)
//   - POST /link/complete        (finalize account + grants)
//
// The verify endpoint returns the flow's own {valid, error} shape on both
// outcomes because the public site consumes it directly.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/services"
)

//
// DTOs
//

// InitiateLinkRequest is the JSON payload starting the magic-link flow.
type InitiateLinkRequest struct {
	Email     string `json:"email" binding:"required" example:"ana@example.com"`
	ChatID    string `json:"chatId" binding:"required" example:"8423671205"`
	Character string `json:"character" binding:"required" example:"sadie"`
	FirstName string `json:"firstName" example:"Ana"`
}

// InitiateLinkResponse confirms dispatch and echoes the token so the
// chat-side caller can correlate the flow.
type InitiateLinkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// VerifyLinkResponse reports whether a magic-link token is still usable and,
// when it is, the identity it binds.
type VerifyLinkResponse struct {
	Valid     bool   `json:"valid"`
	Email     string `json:"email,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	Character string `json:"character,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CompleteLinkRequest is the JSON payload finalizing the flow after payment.
type CompleteLinkRequest struct {
	Token            string   `json:"token" binding:"required"`
	Characters       []string `json:"characters" binding:"required"`
	StripeCustomerID string   `json:"stripeCustomerId"`
}

// CompleteLinkResponse carries the resolved account id.
type CompleteLinkResponse struct {
	Success   bool   `json:"success"`
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

// InitiateLink godoc
// @ID          initiateLink
// @Summary     Start the magic-link flow
// @Description Stores a pending link for (email, chat, character) and emails
// @Description a single-use magic link. A repeat call supersedes the previous
// @Description pending link for the same pair.
// @Tags        Links
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.InitiateLinkRequest  true  "Link intent"
//
// @Success     200  {object}  handlers.InitiateLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     500  {object}  handlers.ErrorResponse  "Email delivery failed"
// @Router      /link/initiate [post]
func (h *Handlers) InitiateLink(c *gin.Context) {
	var req InitiateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing email, chatId, or character")
		return
	}

	character, valid := domain.ParseCharacter(req.Character)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
		return
	}

	token, err := h.linkSvc.Initiate(c.Request.Context(), req.Email, req.ChatID, character, strings.TrimSpace(req.FirstName))
	switch {
	case errors.Is(err, services.ErrMissingFields):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing email, chatId, or character")
		return
	case errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid email format")
		return
	case errors.Is(err, services.ErrInvalidCharacter):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
		return
	case errors.Is(err, services.ErrEmailDelivery):
		fail(c, http.StatusInternalServerError, ErrCodeDeliveryFailed, "Failed to send email. Please try again.")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, InitiateLinkResponse{
		Success: true,
		Message: "Magic link sent! Check your email.",
		Token:   token,
	})
}

// VerifyLink godoc
// @ID          verifyLink
// @Summary     Verify a magic-link token
// @Description Looks up a pending link without consuming it. Expired tokens
// @Description are deleted on sight, so a second verify reports invalid.
// @Tags        Links
// @Produce     json
//
// @Param       token  path  string  true  "Magic-link token"
//
// @Success     200  {object}  handlers.VerifyLinkResponse
// @Failure     400  {object}  handlers.VerifyLinkResponse  "Invalid or expired"
// @Router      /link/verify/{token} [get]
func (h *Handlers) VerifyLink(c *gin.Context) {
	token := c.Param("token")

	pending, err := h.linkSvc.Verify(c.Request.Context(), token)
	switch {
	case errors.Is(err, services.ErrLinkNotFound):
		ok(c, http.StatusBadRequest, VerifyLinkResponse{Valid: false, Error: "Invalid or expired link"})
		return
	case errors.Is(err, services.ErrLinkExpired):
		ok(c, http.StatusBadRequest, VerifyLinkResponse{Valid: false, Error: "Link has expired. Please request a new one."})
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, VerifyLinkResponse{
		Valid:     true,
		Email:     pending.Email,
		ChatID:    pending.ChatID,
		Character: pending.Character.String(),
		FirstName: pending.FirstName,
	})
}

// CompleteLink godoc
// @ID          completeLink
// @Summary     Complete the magic-link flow
// @Description Resolves or creates the account, links the chat, grants the
// @Description selected characters, and burns the token.
// @Tags        Links
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CompleteLinkRequest  true  "Completion payload"
//
// @Success     200  {object}  handlers.CompleteLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid token or fields"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /link/complete [post]
func (h *Handlers) CompleteLink(c *gin.Context) {
	var req CompleteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" || len(req.Characters) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing token or characters")
		return
	}

	characters := make([]domain.Character, 0, len(req.Characters))
	for _, raw := range req.Characters {
		character, valid := domain.ParseCharacter(raw)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
			return
		}
		characters = append(characters, character)
	}

	var customerID *string
	if req.StripeCustomerID != "" {
		customerID = &req.StripeCustomerID
	}

	accountID, err := h.linkSvc.Complete(c.Request.Context(), req.Token, characters, customerID)
	switch {
	case errors.Is(err, services.ErrLinkNotFound), errors.Is(err, services.ErrLinkExpired):
		fail(c, http.StatusBadRequest, ErrCodeInvalidToken, "Invalid token")
		return
	case errors.Is(err, services.ErrInvalidCharacter):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, CompleteLinkResponse{
		Success:   true,
		AccountID: accountID,
		Message:   "Account linked successfully!",
	})
}
