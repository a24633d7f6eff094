package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-guard/internal/usecase"
)

// PasswordHandler exposes the password reset endpoints.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	isDev bool
}

// NewPasswordHandler constructs a PasswordHandler.
func NewPasswordHandler(reset *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{reset: reset, isDev: isDev}
}

// RequestReset issues a password reset token for the given identifier. The
// response is 202 whether or not the identifier matches an account.
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password handler not fully configured"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	// The body never carries the request id or other per-account fields: a
	// field present only for known identifiers would leak existence.
	result, err := h.reset.InitiateReset(c.Request.Context(), usecase.ResetRequestInput{
		Identifier: req.Identifier,
		IP:         c.ClientIP(),
	})
	if err != nil && !errors.Is(err, usecase.ErrAccountNotFound) {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "reset request failed")
		return
	}

	resp := PasswordResetAcceptedResponse{
		Message: "if the account exists, reset instructions have been sent",
	}
	if h.isDev && result != nil {
		token := result.Token
		resp.DevToken = &token
	}

	c.JSON(http.StatusAccepted, resp)
}

// ConfirmReset redeems a reset token and installs the replacement password.
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password handler not fully configured"))
		return
	}

	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset confirmation payload"))
		return
	}

	if err := h.reset.ConfirmReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrResetTokenExpired, Status: http.StatusGone, Message: "reset token has expired"},
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusUnprocessableEntity, Message: "reset token is invalid"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
		}, http.StatusInternalServerError, "reset confirmation failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}
