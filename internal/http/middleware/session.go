package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/http/response"
	"github.com/yungbote/buoy-console/internal/platform/ctxutil"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/session"
)

const (
	sessionCtxKey     = "console_session"
	DefaultAnonCookie = "console_sid"
)

type SessionMiddleware struct {
	log           *logger.Logger
	registry      *session.Registry
	sessionCookie string
	csrfCookie    string
	anonCookie    string
	secure        bool
}

type SessionOptions struct {
	// SessionCookie and CSRFCookie name the backend's cookies, forwarded on
	// every backend call made for the viewer.
	SessionCookie string
	CSRFCookie    string
	// AnonCookie identifies viewers that have no backend session yet.
	AnonCookie string
	Secure     bool
}

func NewSessionMiddleware(log *logger.Logger, registry *session.Registry, opts SessionOptions) *SessionMiddleware {
	if opts.SessionCookie == "" {
		opts.SessionCookie = "sessionid"
	}
	if opts.CSRFCookie == "" {
		opts.CSRFCookie = "csrftoken"
	}
	if opts.AnonCookie == "" {
		opts.AnonCookie = DefaultAnonCookie
	}
	return &SessionMiddleware{
		log:           log.With("Middleware", "SessionMiddleware"),
		registry:      registry,
		sessionCookie: opts.SessionCookie,
		csrfCookie:    opts.CSRFCookie,
		anonCookie:    opts.AnonCookie,
		secure:        opts.Secure,
	}
}

// Attach resolves the viewer's session and records the backend cookies it
// arrived with. Nothing here decides whether the viewer is logged in; the
// backend does, and a 401 surfaces through HandleUnauthorized.
func (sm *SessionMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds gateway.Credentials
		raw := ""
		if ck, err := c.Request.Cookie(sm.sessionCookie); err == nil && strings.TrimSpace(ck.Value) != "" {
			raw = "backend:" + ck.Value
			creds.Cookies = append(creds.Cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
		}
		if ck, err := c.Request.Cookie(sm.csrfCookie); err == nil && strings.TrimSpace(ck.Value) != "" {
			creds.Cookies = append(creds.Cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
			creds.CSRFToken = ck.Value
		}
		if raw == "" {
			raw = "anon:" + sm.anonymousID(c)
		}

		s, err := sm.registry.Get(session.HashID(raw))
		if err != nil {
			sm.log.Error("session attach failed", "error", err)
			response.AbortSessionUnavailable(c)
			return
		}
		s.SetCredentials(creds)
		c.Set(sessionCtxKey, s)
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			td.SessionID = s.ID
		}
		c.Request = c.Request.WithContext(gateway.WithLocation(c.Request.Context(), c.Request.URL.Path))
		c.Next()
	}
}

func (sm *SessionMiddleware) anonymousID(c *gin.Context) string {
	if v, err := c.Cookie(sm.anonCookie); err == nil && v != "" {
		return v
	}
	id := uuid.NewString()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sm.anonCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// SessionFrom returns the session attached to c, or nil.
func SessionFrom(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionCtxKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
