package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/internal/guard"
	"github.com/primebank/primebank-web/internal/models"
)

// View is a guarded page of the front server.
type View struct {
	Path  string
	Title string
	Need  guard.Requirement
}

// Views lists every guarded page.
var Views = []View{
	{Path: "/dashboard", Title: "Dashboard", Need: guard.Authenticated},
	{Path: "/timesheet", Title: "Timesheet", Need: guard.Authenticated},
	{Path: "/requests", Title: "My requests", Need: guard.Authenticated},
	{Path: "/team", Title: "My team", Need: guard.Manager},
	{Path: "/requests/review", Title: "Review requests", Need: guard.Manager},
	{Path: "/admin/users", Title: "Users", Need: guard.Admin},
	{Path: "/admin/teams", Title: "Teams", Need: guard.Admin},
}

// RegisterViews mounts every view behind its route guard.
func RegisterViews(r gin.IRouter, src guard.Source) {
	for _, v := range Views {
		v := v
		r.GET(v.Path, guard.Middleware(src, v.Need, guard.Options{}), func(c *gin.Context) {
			u, _ := c.MustGet(guard.UserKey).(*models.User)
			c.HTML(http.StatusOK, "view", gin.H{"Title": v.Title, "User": u, "Path": v.Path})
		})
	}
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, guard.DefaultHomePath) })
}

// Templates returns the HTML templates used by the handlers.
func Templates() *template.Template {
	t := template.Must(template.New("login").Parse(loginHTML))
	template.Must(t.New("view").Parse(viewHTML))
	return t
}

const loginHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>PrimeBank · {{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
</body></html>
`

const viewHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>PrimeBank · {{.Title}}</title></head>
<body>
<header>
  <span class="user">{{.User.Name}}</span>
  {{if .User.ManagedTeam}}<span class="team">{{.User.ManagedTeam.Name}}</span>{{end}}
  <form method="post" action="/logout"><button type="submit">Sign out</button></form>
</header>
<main data-path="{{.Path}}"><h1>{{.Title}}</h1></main>
</body></html>
`
