package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kirogate/kirogate/internal/apperr"
	"github.com/kirogate/kirogate/internal/translator"
)

// errorType maps the internal error kind to each dialect's error vocabulary.
func errorType(kind apperr.Kind, dialect translator.Dialect) string {
	if dialect == translator.DialectClaude {
		switch kind {
		case apperr.KindValidation:
			return "invalid_request_error"
		case apperr.KindAuth:
			return "authentication_error"
		case apperr.KindUpstream:
			return "api_error"
		default:
			return "api_error"
		}
	}
	switch kind {
	case apperr.KindValidation:
		return "invalid_request_error"
	case apperr.KindAuth:
		return "authentication_error"
	case apperr.KindUpstream:
		return "upstream_error"
	default:
		return "server_error"
	}
}

// writeError renders an error in the dialect the client speaks. The error
// kind is left in the context for the metrics middleware.
func writeError(c *gin.Context, dialect translator.Dialect, err error) {
	appErr := apperr.From(err)
	c.Set("error_kind", string(appErr.Kind))
	if appErr.Kind == apperr.KindCanceled {
		// Client went away; the 499 only reaches logs and metrics.
		c.AbortWithStatus(appErr.Status)
		return
	}
	typ := errorType(appErr.Kind, dialect)
	if dialect == translator.DialectClaude {
		c.JSON(appErr.Status, gin.H{
			"type": "error",
			"error": gin.H{
				"type":    typ,
				"message": appErr.Message,
			},
		})
		return
	}
	c.JSON(appErr.Status, gin.H{
		"error": gin.H{
			"type":    typ,
			"message": appErr.Message,
			"code":    appErr.Status,
		},
	})
}
