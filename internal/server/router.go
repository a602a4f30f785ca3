// Package server exposes the document store over a local HTTP API.
package server

import (
	"net/http"

	"github.com/maruel/jsondb/internal/activity"
	"github.com/maruel/jsondb/internal/backup"
	"github.com/maruel/jsondb/internal/docstore"
	"github.com/maruel/jsondb/internal/models"
	"github.com/maruel/jsondb/internal/server/handlers"
	"github.com/maruel/jsondb/internal/settings"
)

// Services are the dependencies of the router.
type Services struct {
	Store    *docstore.Store
	Settings *settings.Service
	Backup   *backup.Service
	Activity *activity.Logger
	Secret   []byte
	Version  string
}

// NewRouter creates and configures the HTTP router
func NewRouter(svc *Services) http.Handler {
	mux := http.NewServeMux()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(svc.Version)
	docHandler := handlers.NewDocHandler(svc.Store)
	dashboardHandler := handlers.NewDashboardHandler(svc.Settings)
	backupHandler := handlers.NewBackupHandler(svc.Backup)

	route := func(pattern string, role models.Role, command string, h http.Handler, wildcards ...string) {
		h = LogActivity(svc.Activity, command, wildcards...)(h)
		mux.Handle(pattern, RequireRole(role)(h))
	}

	// Health check
	mux.Handle("GET /api/health", Wrap(healthHandler.Health))

	// Document endpoints
	route("GET /api/keys", models.RoleViewer, "keys", Wrap(docHandler.Keys))
	route("GET /api/doc/{path...}", models.RoleViewer, "get", Wrap(docHandler.GetDoc), "path")
	route("PUT /api/doc/{path...}", models.RoleEditor, "set", Wrap(docHandler.PutDoc), "path")
	route("DELETE /api/doc/{path...}", models.RoleEditor, "del", Wrap(docHandler.DeleteDoc), "path")

	// Settings endpoints
	route("GET /api/dashboard", models.RoleViewer, "dashboard", Wrap(dashboardHandler.GetDashboard))
	route("PUT /api/dashboard", models.RoleAdmin, "set-channel", Wrap(dashboardHandler.UpdateDashboard))

	// Backup endpoints
	route("POST /api/backup", models.RoleAdmin, "backup", Wrap(backupHandler.TriggerBackup))
	route("GET /api/backups", models.RoleViewer, "history", Wrap(backupHandler.ListBackups))

	return AuthMiddleware(svc.Secret)(mux)
}
