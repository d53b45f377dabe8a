package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/pkg/metrics"
)

// Requirement is the privilege a guarded view needs.
type Requirement int

const (
	Authenticated Requirement = iota
	Manager
	Admin
)

func (r Requirement) String() string {
	switch r {
	case Manager:
		return "manager"
	case Admin:
		return "admin"
	}
	return "authenticated"
}

// Decision is what a guard does with a request.
type Decision int

const (
	Loading Decision = iota
	RedirectLogin
	RedirectHome
	Render
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	}
	return "render"
}

// Decide maps a session snapshot to a guard decision. Until the first refresh
// decision is known the answer is always Loading.
func Decide(st session.State, req Requirement) Decision {
	if st.IsLoading || !st.HasAttemptedRefresh {
		return Loading
	}
	if st.User == nil {
		return RedirectLogin
	}
	if !Satisfies(st, req) {
		return RedirectHome
	}
	return Render
}

// Satisfies reports whether the session's user meets req. Admins pass every requirement.
func Satisfies(st session.State, req Requirement) bool {
	u := st.User
	if u == nil {
		return false
	}
	switch req {
	case Admin:
		return u.IsAdmin
	case Manager:
		return u.IsAdmin || u.IsManager
	}
	return true
}

const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/dashboard"

	// UserKey is the gin context key holding the *models.User of a rendered view.
	UserKey = "user"
)

// Source returns the session state of the tab that issued the request.
// ok is false when the request carries no tab.
type Source func(c *gin.Context) (st session.State, ok bool)

// Options configures Middleware.
type Options struct {
	LoginPath string
	HomePath  string
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = DefaultLoginPath
	}
	if o.HomePath == "" {
		o.HomePath = DefaultHomePath
	}
	return o
}

// Middleware gates a route on req. Loading renders a self-refreshing
// placeholder, redirects are 302s, and Render passes the user on to the handler.
func Middleware(src Source, req Requirement, opts Options) gin.HandlerFunc {
	opts = opts.withDefaults()
	return func(c *gin.Context) {
		st, ok := src(c)
		if !ok {
			// no tab yet: nothing has been decided for it
			st = session.State{}
		}
		d := Decide(st, req)
		metrics.GuardDecisions.WithLabelValues(d.String()).Inc()

		switch d {
		case Loading:
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loadingPage))
			c.Abort()
		case RedirectLogin:
			c.Redirect(http.StatusFound, opts.LoginPath)
			c.Abort()
		case RedirectHome:
			c.Redirect(http.StatusFound, opts.HomePath)
			c.Abort()
		default:
			c.Set(UserKey, st.User)
			c.Next()
		}
	}
}

const loadingPage = `<!doctype html>
<html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>PrimeBank</title></head>
<body><div class="loader" role="status">Loading…</div></body></html>
`
