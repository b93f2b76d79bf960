package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/http/response"
)

// HandleUnauthorized is the only place an unauthorized backend answer turns
// into navigation. Handlers report it with c.Error and return without
// writing; the viewer is then sent to the login page with next set to the
// path they were on. Requests under apiPrefix get a 401 body instead.
func HandleUnauthorized(loginURL func(next string) string, apiPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		var found bool
		for _, e := range c.Errors {
			if _, ok := gateway.IsUnauthorized(e.Err); ok {
				found = true
				break
			}
		}
		if !found {
			return
		}
		target := loginURL(c.Request.URL.Path)
		if apiPrefix != "" && strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			response.RespondLoginRequired(c, target)
			return
		}
		c.Redirect(http.StatusFound, target)
	}
}
