package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	social *usecase.SocialLoginService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, social *usecase.SocialLoginService) *AuthHandler {
	return &AuthHandler{auth: auth, social: social}
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/social", h.socialLogin)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
}

// Login godoc
// @Summary Authenticate with email or phone and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		var credsErr *usecase.InvalidCredentialsError
		if errors.As(err, &credsErr) {
			resp := NewErrorResponse(c, "invalid credentials")
			resp.AttemptsRemaining = &credsErr.AttemptsRemaining
			c.JSON(http.StatusUnauthorized, resp)
			return
		}
		RespondWithMappedError(c, err, loginErrorCases(), http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, tokenResponseFrom(result))
}

// SocialLogin godoc
// @Summary Authenticate with an external identity provider
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body SocialLoginRequest true "Provider token payload"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/social [post]
func (h *AuthHandler) socialLogin(c *gin.Context) {
	if h.social == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "social login unavailable"))
		return
	}

	var req SocialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid social login payload"))
		return
	}

	result, err := h.social.Login(c.Request.Context(), usecase.SocialLoginInput{
		Provider:  domain.AuthProvider(req.Provider),
		IDToken:   req.IDToken,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnsupportedProvider, Status: http.StatusBadRequest, Message: "unsupported provider"},
			{Err: usecase.ErrProviderTokenInvalid, Status: http.StatusUnauthorized, Message: "provider token rejected"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account is not active"},
		}, http.StatusInternalServerError, "social login failed")
		return
	}

	c.JSON(http.StatusOK, tokenResponseFrom(result))
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh payload"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrExpiredRefreshToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrRefreshTokenReused, Status: http.StatusUnauthorized, Message: "refresh token reuse detected, all sessions revoked"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account is not active"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	c.JSON(http.StatusOK, tokenResponseFrom(result))
}

// Logout godoc
// @Summary Revoke a refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest true "Logout payload"
// @Success 200 {object} MessageResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent()); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func loginErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrAccountPending, Status: http.StatusForbidden, Message: "account pending verification"},
		{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
		{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account is not active"},
	}
}

func tokenResponseFrom(result *usecase.LoginResult) TokenResponse {
	user := userSummaryFrom(result.User)
	expiresIn := int(time.Until(result.Tokens.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		User:         &user,
	}
}
