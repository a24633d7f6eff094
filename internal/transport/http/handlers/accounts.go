package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-guard/internal/usecase"
)

// AccountHandler exposes administrative account endpoints.
type AccountHandler struct {
	accounts *usecase.AccountService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Get returns the lockout-relevant state of an account.
func (h *AccountHandler) Get(c *gin.Context) {
	if h.accounts == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account id is required"))
		return
	}

	account, err := h.accounts.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "account lookup failed")
		return
	}

	c.JSON(http.StatusOK, AccountSummary{
		ID:                  account.ID,
		Username:            account.Username,
		Email:               account.Email,
		Enabled:             account.Enabled,
		Locked:              account.Locked,
		FailedLoginAttempts: account.FailedLoginAttempts,
		LockedAt:            account.LockedAt,
		CreatedAt:           account.CreatedAt,
		LastLogin:           account.LastLogin,
	})
}

// Unlock clears a lock ahead of its natural expiry.
func (h *AccountHandler) Unlock(c *gin.Context) {
	if h.accounts == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account id is required"))
		return
	}

	actor := strings.TrimSpace(c.GetHeader("X-Admin-Actor"))
	if actor == "" {
		actor = "admin"
	}

	if err := h.accounts.Unlock(c.Request.Context(), id, actor); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "unlock failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account unlocked"})
}

// Delete removes an account and every token issued to it.
func (h *AccountHandler) Delete(c *gin.Context) {
	if h.accounts == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "account id is required"))
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "delete failed")
		return
	}

	c.Status(http.StatusNoContent)
}
