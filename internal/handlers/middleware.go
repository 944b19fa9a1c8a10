package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// controllerCtx holds the authenticated controller account id.
const controllerCtx = "controllerId"

const bearerScheme = "Bearer"

var (
	errMissingAuth  = errors.New("missing Authorization header")
	errAuthFormat   = errors.New("invalid Authorization header format")
	errInvalidToken = errors.New("invalid or expired token")
)

// bearerToken extracts the token from an RFC 6750 Authorization header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuth
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", errAuthFormat
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errAuthFormat
	}
	return token, nil
}

// requireController rejects /api/v1 requests that do not carry a valid
// controller token. Accessory reads and writes both go through it.
func (h *Handler) requireController(c *gin.Context) {
	token, err := bearerToken(c.GetHeader("Authorization"))
	if err == nil {
		var id int
		if id, err = h.services.ParseToken(token); err == nil {
			c.Set(controllerCtx, id)
			c.Next()
			return
		}
		h.log.Debugw("controller_token_rejected", "path", c.FullPath(), "err", err)
		err = errInvalidToken
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
}

// controllerID returns the account id set by requireController.
func controllerID(c *gin.Context) int {
	return c.GetInt(controllerCtx)
}
