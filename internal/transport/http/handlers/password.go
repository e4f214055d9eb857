package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/transport/http/middleware"
	"github.com/courtbook/identity-service/internal/usecase"
)

// PasswordHandler exposes password recovery and change endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	auth      *usecase.AuthService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService, auth *usecase.AuthService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, auth: auth}
}

// RegisterRoutes binds password routes.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/forgot-password", h.forgot)
	r.POST("/reset-password", h.reset)
	r.POST("/change-password", middleware.RequireAuth(h.auth), h.change)
}

// Forgot godoc
// @Summary Start password recovery
// @Description Always answers with the same message so the endpoint cannot confirm whether an address is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Recovery payload"
// @Success 200 {object} MessageResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/forgot-password [post]
func (h *PasswordHandler) forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	err := h.passwords.Forgot(c.Request.Context(), usecase.ForgotInput{
		Email:     req.Email,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "password recovery failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the address is registered, a reset link has been sent"})
}

// Reset godoc
// @Summary Finish password recovery
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/auth/reset-password [post]
func (h *PasswordHandler) reset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	err := h.passwords.Reset(c.Request.Context(), usecase.ResetInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPasswordResetTokenInvalid, Status: http.StatusBadRequest, Message: "reset token invalid"},
			{Err: usecase.ErrPasswordResetTokenExpired, Status: http.StatusGone, Message: "reset token expired"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
		}, http.StatusInternalServerError, "password reset failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated, please sign in again"})
}

// Change godoc
// @Summary Change the password of the authenticated user
// @Tags Password
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Change payload"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/user/change-password [post]
func (h *PasswordHandler) change(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	err := h.passwords.Change(c.Request.Context(), usecase.ChangeInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordUnchanged, Status: http.StatusBadRequest, Message: "new password must differ from current password"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "password change failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated, other sessions were signed out"})
}
