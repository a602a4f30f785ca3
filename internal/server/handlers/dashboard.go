package handlers

import (
	"context"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/settings"
)

// DashboardRequest is the request type for the dashboard (empty).
type DashboardRequest struct{}

// UpdateDashboardRequest changes the destinations. Absent or null fields are
// left unchanged; "" or 0 disables the feature.
type UpdateDashboardRequest struct {
	LogChannel    *channel.ID `json:"log_channel"`
	BackupChannel *channel.ID `json:"backup_channel"`
}

// DashboardResponse is the dashboard with its text rendition.
type DashboardResponse struct {
	*settings.Dashboard
	Text string `json:"text"`
}

// DashboardHandler handles settings requests.
type DashboardHandler struct {
	settings *settings.Service
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(s *settings.Service) *DashboardHandler {
	return &DashboardHandler{settings: s}
}

// GetDashboard returns the current settings.
func (h *DashboardHandler) GetDashboard(ctx context.Context, req DashboardRequest) (*DashboardResponse, error) {
	if err := h.settings.EnsureUtils(); err != nil {
		return nil, err
	}
	return h.response(), nil
}

// UpdateDashboard sets the log and backup destinations.
func (h *DashboardHandler) UpdateDashboard(ctx context.Context, req UpdateDashboardRequest) (*DashboardResponse, error) {
	if req.LogChannel != nil {
		if err := h.settings.SetLogChannel(*req.LogChannel); err != nil {
			return nil, err
		}
	}
	if req.BackupChannel != nil {
		if err := h.settings.SetBackupChannel(*req.BackupChannel); err != nil {
			return nil, err
		}
	}
	return h.response(), nil
}

func (h *DashboardHandler) response() *DashboardResponse {
	d := h.settings.Dashboard()
	return &DashboardResponse{Dashboard: d, Text: d.Render()}
}
