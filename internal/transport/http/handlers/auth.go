package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-guard/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login verifies the submitted credentials and issues an access token.
// Credential failures on a locked account still report the lock so callers
// cannot use the error shape to probe whether a password was correct.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "auth handler not fully configured"))
		return
	}

	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Authenticate(c.Request.Context(), usecase.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		IP:         c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account is temporarily locked"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account is not verified"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
		AccountID:   result.AccountID,
		Username:    result.Username,
	})
}
