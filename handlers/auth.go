package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/internal/guard"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/pkg/logger"
)

// CoordinatorSource returns the session coordinator of the requesting tab.
type CoordinatorSource func(c *gin.Context) (*session.Coordinator, bool)

// LoginRequest is the login form; JSON bodies use the same field names.
type LoginRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
}

// SessionResponse is the public view of a tab session. It never carries credentials.
type SessionResponse struct {
	Authenticated       bool         `json:"authenticated"`
	HasAttemptedRefresh bool         `json:"hasAttemptedRefresh"`
	IsLoading           bool         `json:"isLoading"`
	TokenExpiry         *int64       `json:"tokenExpiry,omitempty"`
	NextRefresh         *time.Time   `json:"nextRefresh,omitempty"`
	User                *models.User `json:"user,omitempty"`
}

// AuthHandler serves login, logout and session endpoints of the front server.
type AuthHandler struct {
	coords    CoordinatorSource
	loginPath string
	homePath  string
}

func NewAuthHandler(coords CoordinatorSource) *AuthHandler {
	return &AuthHandler{coords: coords, loginPath: guard.DefaultLoginPath, homePath: guard.DefaultHomePath}
}

// Register mounts the routes; limiter, when non-nil, guards POST /login.
func (h *AuthHandler) Register(r gin.IRouter, limiter gin.HandlerFunc) {
	r.GET(h.loginPath, h.LoginPage)
	if limiter != nil {
		r.POST(h.loginPath, limiter, h.Login)
	} else {
		r.POST(h.loginPath, h.Login)
	}
	r.POST("/logout", h.Logout)
	r.GET("/api/session", h.Session)
	r.POST("/api/session/refresh", h.Refresh)
	r.GET("/api/profile", h.Profile)
}

func (h *AuthHandler) coordinator(c *gin.Context) (*session.Coordinator, bool) {
	coord, ok := h.coords(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
	}
	return coord, ok
}

// LoginPage renders the login form, or sends an authenticated visitor home.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if coord.Snapshot().Authenticated() {
		c.Redirect(http.StatusFound, h.homePath)
		return
	}
	c.HTML(http.StatusOK, "login", gin.H{"Title": "Sign in", "Email": ""})
}

// Login submits email and password. Form posts answer with a redirect or the
// re-rendered form; JSON posts answer with JSON.
func (h *AuthHandler) Login(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	asJSON := wantsJSON(c)

	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginFailed(c, asJSON, http.StatusBadRequest, "Enter your email and password", req.Email)
		return
	}

	user, err := coord.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		logger.Infof("login rejected email=%s", req.Email)
		h.loginFailed(c, asJSON, http.StatusUnauthorized, "Invalid email or password", req.Email)
		return
	case err != nil:
		logger.Errorf("login failed email=%s: %v", req.Email, err)
		h.loginFailed(c, asJSON, http.StatusBadGateway, "Sign-in is unavailable, try again later", req.Email)
		return
	}

	if asJSON {
		c.JSON(http.StatusOK, gin.H{"user": user})
		return
	}
	c.Redirect(http.StatusSeeOther, h.homePath)
}

func (h *AuthHandler) loginFailed(c *gin.Context, asJSON bool, status int, msg, email string) {
	if asJSON {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.HTML(status, "login", gin.H{"Title": "Sign in", "Error": msg, "Email": email})
}

// Logout revokes the refresh credential and clears the tab session.
func (h *AuthHandler) Logout(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	coord.Logout(c.Request.Context())
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
		return
	}
	c.Redirect(http.StatusSeeOther, h.loginPath)
}

// Session returns the tab's session snapshot.
func (h *AuthHandler) Session(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(coord))
}

// Refresh runs the refresh executor now. 200 on success, 401 when the
// refresh failed and the session ended, 409 when one was already in flight.
func (h *AuthHandler) Refresh(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	// the exchange outlives a client that disconnects mid-request
	out := coord.Refresh(context.WithoutCancel(c.Request.Context()))
	status := http.StatusOK
	switch out {
	case session.OutcomeFailed:
		status = http.StatusUnauthorized
	case session.OutcomeSkipped:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"outcome": out.String(), "session": snapshotResponse(coord)})
}

// Profile returns the signed-in user as the API currently reports it, served
// from the tab's query cache after the first load.
func (h *AuthHandler) Profile(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if !coord.Snapshot().Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	user, err := coord.Profile(c.Request.Context())
	if err != nil {
		if !coord.Snapshot().Authenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session ended"})
			return
		}
		logger.Errorf("load profile: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "profile unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func snapshotResponse(coord *session.Coordinator) SessionResponse {
	st := coord.Snapshot()
	resp := SessionResponse{
		Authenticated:       st.Authenticated(),
		HasAttemptedRefresh: st.HasAttemptedRefresh,
		IsLoading:           st.IsLoading,
		TokenExpiry:         st.TokenExpiry,
		User:                st.User,
	}
	if at, ok := coord.Scheduler().NextRefresh(); ok {
		resp.NextRefresh = &at
	}
	return resp
}

func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == gin.MIMEJSON {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, gin.MIMEJSON) && !strings.Contains(accept, gin.MIMEHTML)
}
