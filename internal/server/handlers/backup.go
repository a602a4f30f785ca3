package handlers

import (
	"context"

	"github.com/maruel/jsondb/internal/backup"
)

// BackupRequest is the request type for a manual backup (empty).
type BackupRequest struct{}

// BackupHandler handles manual backups.
type BackupHandler struct {
	backup *backup.Service
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(s *backup.Service) *BackupHandler {
	return &BackupHandler{backup: s}
}

// TriggerBackup runs a backup now, subject to the manual rate limit.
func (h *BackupHandler) TriggerBackup(ctx context.Context, req BackupRequest) (*backup.Result, error) {
	return h.backup.Trigger(ctx)
}

// ListBackupsRequest lists recorded delivery attempts.
type ListBackupsRequest struct {
	Limit int `query:"n" json:"-"`
}

// ListBackupsResponse is the journal, newest first.
type ListBackupsResponse struct {
	Backups []backup.Result `json:"backups"`
}

// ListBackups returns the most recent backup attempts. Defaults to 20.
func (h *BackupHandler) ListBackups(ctx context.Context, req ListBackupsRequest) (*ListBackupsResponse, error) {
	n := req.Limit
	if n <= 0 {
		n = 20
	}
	items := h.backup.Journal(n)
	if items == nil {
		items = []backup.Result{}
	}
	return &ListBackupsResponse{Backups: items}, nil
}
