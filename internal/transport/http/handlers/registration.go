package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-guard/internal/usecase"
)

// RegistrationHandler exposes account registration endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	isDev        bool
}

// NewRegistrationHandler constructs a RegistrationHandler. When isDev is true
// the raw verification token is echoed back in responses instead of being
// delivered out of band.
func NewRegistrationHandler(registration *usecase.RegistrationService, isDev bool) *RegistrationHandler {
	return &RegistrationHandler{registration: registration, isDev: isDev}
}

// Register creates a disabled account and issues a verification token.
func (h *RegistrationHandler) Register(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration handler not fully configured"))
		return
	}

	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountExists, Status: http.StatusConflict, Message: "username or email already registered"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	resp := RegistrationResponse{
		AccountID:            result.AccountID,
		Username:             result.Username,
		RequiresVerification: true,
		ExpiresAt:            result.ExpiresAt,
	}
	if h.isDev {
		token := result.VerificationToken
		resp.DevToken = &token
	}

	c.JSON(http.StatusCreated, resp)
}

// Verify redeems a verification token and enables the account.
func (h *RegistrationHandler) Verify(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration handler not fully configured"))
		return
	}

	var req RegistrationVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	account, err := h.registration.Verify(c.Request.Context(), req.Token)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrVerificationTokenExpired, Status: http.StatusGone, Message: "verification token has expired"},
			{Err: usecase.ErrVerificationTokenInvalid, Status: http.StatusUnprocessableEntity, Message: "verification token is invalid"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, RegistrationVerifyResponse{
		Message: "account verified",
		Account: AccountSummary{
			ID:        account.ID,
			Username:  account.Username,
			Email:     account.Email,
			Enabled:   account.Enabled,
			CreatedAt: account.CreatedAt,
		},
	})
}

// ResendVerification replaces a pending verification token with a fresh one.
// The response is identical whether or not the identifier is known.
func (h *RegistrationHandler) ResendVerification(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration handler not fully configured"))
		return
	}

	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	// Unknown and already verified identifiers get the same accepted response
	// as known ones so the endpoint cannot be used to enumerate accounts. The
	// body never carries account fields: a populated account_id or expires_at
	// would leak existence just as a 404 would.
	result, err := h.registration.ResendVerification(c.Request.Context(), req.Identifier)
	if err != nil && !errors.Is(err, usecase.ErrAccountNotFound) && !errors.Is(err, usecase.ErrAccountAlreadyVerified) {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "resend failed")
		return
	}

	resp := ResendVerificationAcceptedResponse{
		Message: "if the account exists and is unverified, a new token has been sent",
	}
	if h.isDev && result != nil {
		token := result.VerificationToken
		resp.DevToken = &token
	}

	c.JSON(http.StatusAccepted, resp)
}
