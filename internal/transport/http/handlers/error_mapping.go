package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Rate limit errors are always answered with 429 and a Retry-After header.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var limitErr *usecase.RateLimitExceededError
	if errors.As(err, &limitErr) {
		if limitErr.RetryAfter > 0 {
			seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many requests"))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
