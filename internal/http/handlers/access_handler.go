// Access HTTP handlers.
//
// This file exposes REST endpoints for entitlement checks:
//   - GET /access/{chatId}/{character}  (per-character decision)
//   - GET /access/{chatId}             (account + grants summary)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// CheckAccess godoc
// @ID          checkAccess
// @Summary     Check character access
// @Description Decides whether a chat id may talk to a character: active
// @Description subscription with a matching grant, trial allowance, or denial.
// @Tags        Access
// @Produce     json
//
// @Param       chatId     path  string  true  "Chat ID"
// @Param       character  path  string  true  "Character name"
//
// @Success     200  {object}  services.AccessDecision
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown character"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /access/{chatId}/{character} [get]
func (h *Handlers) CheckAccess(c *gin.Context) {
	chatID := strings.TrimSpace(c.Param("chatId"))
	character, valid := domain.ParseCharacter(c.Param("character"))
	if chatID == "" || !valid {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
		return
	}

	decision, err := h.accessSvc.CheckAccess(c.Request.Context(), chatID, character)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeAccessFailed, "Internal server error")
		return
	}
	ok(c, http.StatusOK, decision)
}

// ListAccess godoc
// @ID          listAccess
// @Summary     List account access
// @Description Returns the linked account (if any) and every character it
// @Description holds for the given chat id.
// @Tags        Access
// @Produce     json
//
// @Param       chatId  path  string  true  "Chat ID"
//
// @Success     200  {object}  services.AccessSummary
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /access/{chatId} [get]
func (h *Handlers) ListAccess(c *gin.Context) {
	chatID := strings.TrimSpace(c.Param("chatId"))
	if chatID == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing chat id")
		return
	}

	summary, err := h.accessSvc.ListAccess(c.Request.Context(), chatID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeAccessFailed, "Internal server error")
		return
	}
	ok(c, http.StatusOK, summary)
}
