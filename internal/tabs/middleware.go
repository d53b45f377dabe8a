package tabs

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/primebank/primebank-web/internal/session"
)

const (
	// CookieName holds the tab id. It carries no Max-Age so it ends with the browser session.
	CookieName = "pb_tab"

	coordinatorKey = "tab.coordinator"
	idKey          = "tab.id"
)

// Middleware attaches the request's tab coordinator to the gin context,
// issuing a new tab cookie when the request has none or a malformed one.
func Middleware(r *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(CookieName)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   c.Request.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
		coord, err := r.Acquire(c.Request.Context(), id)
		if err != nil {
			log.Errorf("acquire tab %s: %v", id, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			return
		}
		c.Set(idKey, id)
		c.Set(coordinatorKey, coord)
		c.Next()
	}
}

// FromContext returns the coordinator attached by Middleware.
func FromContext(c *gin.Context) (*session.Coordinator, bool) {
	v, ok := c.Get(coordinatorKey)
	if !ok {
		return nil, false
	}
	coord, ok := v.(*session.Coordinator)
	return coord, ok
}

// ID returns the tab id attached by Middleware.
func ID(c *gin.Context) string {
	return c.GetString(idKey)
}

// State reads the tab's session snapshot; it has the shape guard.Source expects.
func State(c *gin.Context) (session.State, bool) {
	coord, ok := FromContext(c)
	if !ok {
		return session.State{}, false
	}
	return coord.Snapshot(), true
}
