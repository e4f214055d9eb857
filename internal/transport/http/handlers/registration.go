package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/usecase"
)

// RegistrationHandler exposes signup and verification endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	verification *usecase.VerificationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService, verification *usecase.VerificationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration, verification: verification}
}

// RegisterRoutes binds registration routes.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
	r.POST("/verify", h.verify)
	r.POST("/resend", h.resend)
}

// Register godoc
// @Summary Register a new account
// @Description Creates a pending account and sends a verification code to the supplied email.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration payload"
// @Success 201 {object} RegistrationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Email:     req.Email,
		Phone:     req.Phone,
		FullName:  req.FullName,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrPhoneTaken, Status: http.StatusConflict, Message: "phone already registered"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
			{Err: usecase.ErrRegistrationUnavailable, Status: http.StatusServiceUnavailable, Message: "registration unavailable"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		User:                 userSummaryFrom(result.User),
		RequiresVerification: true,
		Delivery:             string(result.OTPChannel),
		ExpiresAt:            result.OTPExpiresAt,
	})
}

// Verify godoc
// @Summary Confirm account ownership with a one-time code
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verification payload"
// @Success 200 {object} VerifyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/verify [post]
func (h *RegistrationHandler) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	user, err := h.verification.VerifyOTP(c.Request.Context(), usecase.VerifyInput{
		Email:     req.Email,
		Code:      req.Code,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "account already verified"},
			{Err: usecase.ErrVerificationCodeInvalid, Status: http.StatusBadRequest, Message: "verification code invalid"},
			{Err: usecase.ErrVerificationCodeExpired, Status: http.StatusGone, Message: "verification code expired"},
			{Err: usecase.ErrVerificationAttemptsExceeded, Status: http.StatusGone, Message: "too many wrong codes, request a new one"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Message: "account verified",
		User:    userSummaryFrom(*user),
	})
}

// Resend godoc
// @Summary Resend the verification code
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body ResendRequest true "Resend payload"
// @Success 200 {object} ResendResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/resend [post]
func (h *RegistrationHandler) resend(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	result, err := h.verification.ResendOTP(c.Request.Context(), usecase.ResendInput{
		Email:     req.Email,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "account already verified"},
			{Err: usecase.ErrResendQuotaExceeded, Status: http.StatusTooManyRequests, Message: "daily resend limit reached"},
		}, http.StatusInternalServerError, "resend failed")
		return
	}

	c.JSON(http.StatusOK, ResendResponse{
		Message:   "verification code sent",
		Delivery:  string(result.Channel),
		ExpiresAt: result.ExpiresAt,
	})
}
