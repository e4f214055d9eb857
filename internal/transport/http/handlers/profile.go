package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/transport/http/middleware"
	"github.com/courtbook/identity-service/internal/usecase"
)

// ProfileHandler exposes account endpoints for authenticated users.
type ProfileHandler struct {
	users *usecase.UserService
	auth  *usecase.AuthService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(users *usecase.UserService, auth *usecase.AuthService) *ProfileHandler {
	return &ProfileHandler{users: users, auth: auth}
}

// RegisterRoutes binds profile routes behind authentication.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	authed := r.Group("", middleware.RequireAuth(h.auth))
	authed.GET("/me", h.me)
	authed.GET("/activity", h.activity)
}

// Me godoc
// @Summary Current account profile
// @Tags Profile
// @Security BearerAuth
// @Produce json
// @Success 200 {object} UserSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/user/me [get]
func (h *ProfileHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "profile lookup failed")
		return
	}

	c.JSON(http.StatusOK, userSummaryFrom(*user))
}

// Activity godoc
// @Summary Recent security events for the current account
// @Tags Profile
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Maximum events to return"
// @Success 200 {array} AuditEventView
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/user/activity [get]
func (h *ProfileHandler) activity(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	events, err := h.users.ListAuditEvents(c.Request.Context(), userID, limit)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "activity lookup failed")
		return
	}

	views := make([]AuditEventView, 0, len(events))
	for _, e := range events {
		views = append(views, AuditEventView{
			ID:        e.ID,
			EventType: string(e.EventType),
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, views)
}
