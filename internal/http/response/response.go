package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// Key names the offending document entry on shape failures.
	Key string `json:"key,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err using the status and code carried by an apierr.Error, or 500.
func RespondAPIError(c *gin.Context, err error) {
	ae := apierr.As(err)
	if ae == nil {
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	env := ErrorEnvelope{Error: APIError{Message: ae.Error(), Code: ae.Code}}
	if key, ok := ae.Detail["key"].(string); ok {
		env.Error.Key = key
	}
	c.JSON(ae.Status, env)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
