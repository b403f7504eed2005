package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
)

const DefaultCookieName = "bo_session"

// Manager carries the opaque login token in an HttpOnly cookie. The cookie
// lifetime follows the server-side session expiry.
type Manager struct {
	name   string
	secure bool
	clock  clock.Clock
}

func NewManager(cfg config.Config, clk clock.Clock) *Manager {
	name := cfg.AuthCookieName
	if name == "" {
		name = DefaultCookieName
	}
	return &Manager{name: name, secure: cfg.AuthCookieSecure, clock: clk}
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	cookie, err := c.Request.Cookie(m.name)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(cookie.Value)
	return token, token != ""
}

func (m *Manager) Set(c *gin.Context, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(m.clock.Now())
	if ttl <= 0 {
		m.Clear(c)
		return
	}
	m.write(c, token, expiresAt, int(ttl/time.Second))
}

func (m *Manager) Clear(c *gin.Context) {
	m.write(c, "", time.Unix(0, 0), -1)
}

func (m *Manager) write(c *gin.Context, value string, expires time.Time, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
