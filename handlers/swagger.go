package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the front server.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>primebank-web · Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document of the front server's JSON and form endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "primebank-web", "version": "v0.1.0" },
  "paths": {
    "/login": {
      "get": { "summary": "Login form", "responses": { "200": { "description": "form" }, "302": { "description": "already signed in" } } },
      "post": {
        "summary": "Sign in with email and password",
        "requestBody": { "content": {
          "application/json": { "schema": {"type":"object","required":["email","password"],"properties":{"email":{"type":"string"},"password":{"type":"string"}}}},
          "application/x-www-form-urlencoded": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}
        }},
        "responses": { "200": { "description": "signed in (JSON)" }, "303": { "description": "signed in (form)" }, "401": { "description": "invalid credentials" }, "429": { "description": "too many attempts" } }
      }
    },
    "/logout": {
      "post": { "summary": "Revoke the refresh credential and clear the tab session", "responses": { "200": { "description": "logged out (JSON)" }, "303": { "description": "logged out (form)" } } }
    },
    "/api/session": {
      "get": { "summary": "Session snapshot of the current tab", "responses": { "200": { "description": "snapshot" } } }
    },
    "/api/session/refresh": {
      "post": { "summary": "Refresh the access credential now", "responses": { "200": { "description": "refreshed" }, "401": { "description": "refresh failed, session ended" }, "409": { "description": "refresh already in flight" } } }
    },
    "/api/profile": {
      "get": { "summary": "Current user as reported by the API", "responses": { "200": { "description": "user" }, "401": { "description": "not signed in" }, "502": { "description": "API unavailable" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
