package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/challenge"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case challenge.IsConfigError(err),
		errors.Is(err, challenge.ErrSelfChallenge),
		errors.Is(err, challenge.ErrMissingParty),
		errors.Is(err, challenge.ErrEmptyResult):
		return http.StatusBadRequest
	case challenge.IsRoleError(err):
		return http.StatusForbidden
	case errors.Is(err, challenge.ErrNotFound):
		return http.StatusNotFound
	case challenge.IsSequenceError(err):
		return http.StatusConflict
	case challenge.IsStoreError(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		c.JSON(status, gin.H{"error": "challenge store unavailable, try again"})
	case http.StatusInternalServerError:
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
