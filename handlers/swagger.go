package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the back office API.
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
    <title>backoffice API - Swagger</title>
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

// Paths only; request schemas are listed for the auth endpoints used by the login page.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "backoffice", "version": "v1.0.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } } },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Password or authorization-code login",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["password","auth_code"]},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "security": [], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the access token and refresh session", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/auth/me": { "get": { "summary": "Current user and effective permissions", "responses": { "200": { "description": "user" } } } },
    "/api/users": { "get": { "summary": "List users" }, "post": { "summary": "Create a user" } },
    "/api/users/{id}": { "get": { "summary": "Get user" }, "patch": { "summary": "Update profile or deactivate" }, "delete": { "summary": "Delete user" } },
    "/api/users/{id}/password": { "put": { "summary": "Reset password" } },
    "/api/users/{id}/roles": { "get": { "summary": "Roles of a user" }, "put": { "summary": "Replace roles of a user" } },
    "/api/users/{id}/permissions": { "get": { "summary": "Effective permissions of a user" } },
    "/api/permissions/catalog": { "get": { "summary": "Modules and actions a role may grant" } },
    "/api/roles": { "get": { "summary": "List roles" }, "post": { "summary": "Create role" } },
    "/api/roles/{id}": { "get": { "summary": "Get role" }, "put": { "summary": "Update role" }, "delete": { "summary": "Delete custom role" } },
    "/api/clients": { "get": { "summary": "List clients" }, "post": { "summary": "Register client" } },
    "/api/clients/{id}": { "get": { "summary": "Get client" }, "patch": { "summary": "Update client" }, "delete": { "summary": "Delete client" } },
    "/api/statements": { "get": { "summary": "List statements" }, "post": { "summary": "Generate statement from client" } },
    "/api/statements/{id}": { "get": { "summary": "Get statement" }, "delete": { "summary": "Delete statement" } },
    "/api/statements/{id}/body": { "put": { "summary": "Edit statement markdown" } },
    "/api/statements/{id}/render": { "post": { "summary": "Render statement to HTML" } },
    "/api/estimations/calculate": { "post": { "summary": "Compute settlement estimation" } },
    "/api/estimations": { "get": { "summary": "List estimations" }, "post": { "summary": "Save estimation" } },
    "/api/estimations/export": { "get": { "summary": "Export estimations as xlsx" } },
    "/api/estimations/{id}": { "get": { "summary": "Get estimation" }, "delete": { "summary": "Delete estimation" } },
    "/api/telemarketing/settings": { "get": { "summary": "Telemarketing settings" }, "put": { "summary": "Update settings" } },
    "/api/telemarketing/settings/statuses/rename": { "post": { "summary": "Rename a prospect status" } },
    "/api/telemarketing/settings/sources/rename": { "post": { "summary": "Rename a prospect source" } },
    "/api/prospects": { "get": { "summary": "List prospects" }, "post": { "summary": "Create prospect" } },
    "/api/prospects/import": { "post": { "summary": "Import prospects from xlsx" } },
    "/api/prospects/export": { "get": { "summary": "Export prospects as xlsx" } },
    "/api/prospects/assign": { "post": { "summary": "Assign prospects to an agent" } },
    "/api/prospects/{id}": { "get": { "summary": "Get prospect" }, "patch": { "summary": "Update prospect" }, "delete": { "summary": "Delete prospect" } },
    "/api/telemarketing/queue": { "get": { "summary": "Call queue of the current agent" } },
    "/api/telemarketing/sessions": { "get": { "summary": "List call sessions" }, "post": { "summary": "Start call session" } },
    "/api/telemarketing/sessions/active": { "get": { "summary": "Open session of the current agent" } },
    "/api/telemarketing/sessions/{id}": { "get": { "summary": "Get call session" } },
    "/api/telemarketing/sessions/{id}/stats": { "get": { "summary": "Live session statistics" } },
    "/api/telemarketing/sessions/{id}/calls": { "post": { "summary": "Start call on next or chosen prospect" } },
    "/api/telemarketing/sessions/{id}/skip": { "post": { "summary": "Skip to next prospect" } },
    "/api/telemarketing/sessions/{id}/disposition": { "post": { "summary": "Record call outcome" } },
    "/api/telemarketing/sessions/{id}/break/start": { "post": { "summary": "Start break" } },
    "/api/telemarketing/sessions/{id}/break/end": { "post": { "summary": "End break" } },
    "/api/telemarketing/sessions/{id}/end": { "post": { "summary": "End session" } },
    "/api/call-logs": { "get": { "summary": "List call logs" } },
    "/api/call-logs/export": { "get": { "summary": "Export call logs as xlsx" } },
    "/api/call-logs/{id}": { "get": { "summary": "Get call log" } },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [] } }
  }
}`
