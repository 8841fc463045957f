package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/apperrors"
)

// respondError maps domain errors to HTTP statuses. Anything else is logged
// and reported as a generic failure.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	if !apperrors.IsDomain(err) {
		logger.Error("request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"request_id", requestIDFromContext(c),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
