// Trial HTTP handlers.
//
// This file exposes REST endpoints for the free-trial meter:
//   - POST /trial/check      (ensure + report, no consumption)
//   - POST /trial/decrement  (spend one message)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

//
// DTOs
//

// TrialRequest is the JSON payload identifying one (chat, character) trial.
type TrialRequest struct {
	ChatID    string `json:"chatId" binding:"required" example:"8423671205"`
	Character string `json:"character" binding:"required" example:"sadie"`
}

// TrialCheckResponse reports trial status without consuming a message.
type TrialCheckResponse struct {
	HasTrialRemaining bool `json:"hasTrialRemaining"`
	MessagesRemaining int  `json:"messagesRemaining"`
	IsNewTrial        bool `json:"isNewTrial"`
}

// TrialDecrementResponse reports the counter after spending one message.
type TrialDecrementResponse struct {
	Success           bool `json:"success"`
	MessagesRemaining int  `json:"messagesRemaining"`
	TrialExpired      bool `json:"trialExpired"`
}

// bindTrialRequest parses and validates the common trial payload.
func bindTrialRequest(c *gin.Context) (chatID string, character domain.Character, okReq bool) {
	var req TrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing chatId or character")
		return "", "", false
	}
	chatID = strings.TrimSpace(req.ChatID)
	character, valid := domain.ParseCharacter(req.Character)
	if chatID == "" || !valid {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing chatId or character")
		return "", "", false
	}
	return chatID, character, true
}

// CheckTrial godoc
// @ID          checkTrial
// @Summary     Check trial status
// @Description Ensures a trial exists for the pair and reports its counter
// @Description without consuming a message.
// @Tags        Trials
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.TrialRequest  true  "Trial identity"
//
// @Success     200  {object}  handlers.TrialCheckResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /trial/check [post]
func (h *Handlers) CheckTrial(c *gin.Context) {
	chatID, character, okReq := bindTrialRequest(c)
	if !okReq {
		return
	}

	trial, err := h.trialSvc.Ensure(c.Request.Context(), chatID, character)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, TrialCheckResponse{
		HasTrialRemaining: trial.MessagesRemaining > 0,
		MessagesRemaining: trial.MessagesRemaining,
		IsNewTrial:        trial.MessagesRemaining == h.trialAllowance,
	})
}

// DecrementTrial godoc
// @ID          decrementTrial
// @Summary     Consume one trial message
// @Description Spends one message from the pair's trial. The counter floors
// @Description at zero; decrementing an exhausted trial is a no-op.
// @Tags        Trials
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.TrialRequest  true  "Trial identity"
//
// @Success     200  {object}  handlers.TrialDecrementResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /trial/decrement [post]
func (h *Handlers) DecrementTrial(c *gin.Context) {
	chatID, character, okReq := bindTrialRequest(c)
	if !okReq {
		return
	}

	remaining, err := h.trialSvc.Consume(c.Request.Context(), chatID, character)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, TrialDecrementResponse{
		Success:           true,
		MessagesRemaining: remaining,
		TrialExpired:      remaining == 0,
	})
}
