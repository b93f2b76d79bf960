package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// LoginURL is set on 401 answers; the caller has to send the viewer there.
	LoginURL string `json:"login_url,omitempty"`
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

// RespondLoginRequired is the JSON form of the login redirect.
func RespondLoginRequired(c *gin.Context, loginURL string) {
	c.JSON(http.StatusUnauthorized, ErrorEnvelope{
		Error: APIError{Message: "login required", Code: "unauthorized", LoginURL: loginURL},
	})
}

// AbortSessionUnavailable stops the chain when no viewer session could be built.
func AbortSessionUnavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorEnvelope{
		Error: APIError{Message: "session unavailable", Code: "session_unavailable"},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
