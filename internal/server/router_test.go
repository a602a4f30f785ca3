package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/maruel/jsondb/internal/activity"
	"github.com/maruel/jsondb/internal/backup"
	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	"github.com/maruel/jsondb/internal/jsonldb"
	"github.com/maruel/jsondb/internal/models"
	"github.com/maruel/jsondb/internal/settings"
)

type testServer struct {
	h     http.Handler
	store *docstore.Store
	out   *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	reg := channel.NewRegistry()
	reg.Register("7", &channel.WriterSender{ID: "7", Name: "stdout", W: out})
	reg.Register("1", &channel.DirSender{ID: "1", Dir: t.TempDir()})
	b := backup.NewService(store, reg, 1)
	journal, err := jsonldb.NewTable[backup.Result](filepath.Join(t.TempDir(), "backups.jsonl"), 0)
	if err != nil {
		t.Fatal(err)
	}
	b.SetJournal(journal)
	h := NewRouter(&Services{
		Store:    store,
		Settings: settings.NewService(store, reg),
		Backup:   b,
		Activity: activity.NewLogger(store, reg),
		Secret:   testSecret,
		Version:  "test",
	})
	return &testServer{h: h, store: store, out: out}
}

func (s *testServer) do(t *testing.T, role models.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, http.NoBody)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if role != "" {
		tok, err := IssueToken(testSecret, "ops", role, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, r)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid response %q: %v", rr.Body, err)
	}
	return m
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	e, _ := decodeBody(t, rr)["error"].(map[string]any)
	c, _ := e["code"].(string)
	return c
}

func TestRouterHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, "", "GET", "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if got := decodeBody(t, rr); got["status"] != "ok" || got["version"] != "test" {
		t.Errorf("health = %v", got)
	}
	if rr := s.do(t, "", "GET", "/api/keys", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("keys without token: status %d", rr.Code)
	}
}

func TestRouterDoc(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, models.RoleEditor, "PUT", "/api/doc/users/alice", `{"value": {"age": 30, "tags": ["a"]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status %d: %s", rr.Code, rr.Body)
	}
	v, err := s.store.Resolve("users.alice.age")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := v.Int64(); n != 30 {
		t.Errorf("stored age = %#v", v.Raw())
	}

	rr = s.do(t, models.RoleViewer, "GET", "/api/doc/users/alice/age", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status %d: %s", rr.Code, rr.Body)
	}
	if got := decodeBody(t, rr)["value"]; got != float64(30) {
		t.Errorf("GET value = %#v", got)
	}

	rr = s.do(t, models.RoleViewer, "GET", "/api/doc/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET root status %d", rr.Code)
	}
	root, _ := decodeBody(t, rr)["value"].(map[string]any)
	if _, ok := root["users"]; !ok {
		t.Errorf("root = %v", root)
	}

	rr = s.do(t, models.RoleViewer, "GET", "/api/keys?q=%5Eus", "")
	var keys struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &keys); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys.Keys, []string{"users"}) {
		t.Errorf("keys = %v", keys.Keys)
	}

	tests := []struct {
		name   string
		role   models.Role
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"viewer cannot write", models.RoleViewer, "PUT", "/api/doc/x", `{"value": 1}`, http.StatusForbidden, "UNAUTHORIZED"},
		{"missing key", models.RoleViewer, "GET", "/api/doc/users/bob", "", http.StatusNotFound, "KEY_NOT_FOUND"},
		{"delete missing", models.RoleEditor, "DELETE", "/api/doc/users/bob", "", http.StatusNotFound, "MISSING_KEY"},
		{"through a leaf", models.RoleEditor, "PUT", "/api/doc/users/alice/age/x", `{"value": 1}`, http.StatusConflict, "NOT_AN_OBJECT"},
		{"no value", models.RoleEditor, "PUT", "/api/doc/x", `{}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown field", models.RoleEditor, "PUT", "/api/doc/x", `{"v": 1}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"root write", models.RoleEditor, "PUT", "/api/doc/", `{"value": 1}`, http.StatusBadRequest, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, tt.role, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status %d, want %d: %s", rr.Code, tt.status, rr.Body)
			}
			if got := errorCode(t, rr); got != tt.code {
				t.Errorf("code %q, want %q", got, tt.code)
			}
		})
	}

	rr = s.do(t, models.RoleEditor, "DELETE", "/api/doc/users/alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE status %d: %s", rr.Code, rr.Body)
	}
	if v, ok := s.store.Get("users"); !ok || v.Kind() != docstore.KindObject {
		t.Errorf("users = %#v", v.Raw())
	} else if view, _ := v.View(); view.Len() != 0 {
		t.Errorf("users not empty: %s", view)
	}
}

func TestRouterDashboard(t *testing.T) {
	s := newTestServer(t)

	if rr := s.do(t, models.RoleEditor, "PUT", "/api/dashboard", `{"log_channel": 7}`); rr.Code != http.StatusForbidden {
		t.Fatalf("editor status %d", rr.Code)
	}
	rr := s.do(t, models.RoleAdmin, "PUT", "/api/dashboard", `{"log_channel": 7}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status %d: %s", rr.Code, rr.Body)
	}
	if got := decodeBody(t, rr); got["log_channel"] != "7" || got["log_destination"] != "stdout" {
		t.Errorf("dashboard = %v", got)
	}
	if got := s.store.View(settings.UtilsKey).Get(settings.LogChannelKey, nil); got != json.Number("7") {
		t.Errorf("log_channel = %#v", got)
	}
	// The update itself is logged since the channel is now set.
	if out := s.out.String(); !strings.Contains(out, "Username: `ops`") || !strings.Contains(out, "Command: /set-channel") {
		t.Errorf("activity log = %q", out)
	}

	s.out.Reset()
	if rr := s.do(t, models.RoleViewer, "GET", "/api/doc/utils/log_channel", ""); rr.Code != http.StatusOK {
		t.Fatalf("GET status %d", rr.Code)
	}
	if out := s.out.String(); !strings.Contains(out, "Command: /get") || !strings.Contains(out, "path: utils/log_channel") {
		t.Errorf("activity log = %q", out)
	}

	rr = s.do(t, models.RoleAdmin, "PUT", "/api/dashboard", `{"backup_channel": 99}`)
	if rr.Code != http.StatusBadGateway || errorCode(t, rr) != "DESTINATION_UNAVAILABLE" {
		t.Errorf("unknown channel: status %d: %s", rr.Code, rr.Body)
	}

	rr = s.do(t, models.RoleAdmin, "PUT", "/api/dashboard", `{"log_channel": 0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status %d", rr.Code)
	}
	if got := s.store.View(settings.UtilsKey).Get(settings.LogChannelKey, "x"); got != nil {
		t.Errorf("log_channel = %#v", got)
	}

	rr = s.do(t, models.RoleViewer, "GET", "/api/dashboard", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status %d", rr.Code)
	}
	if text, _ := decodeBody(t, rr)["text"].(string); !strings.Contains(text, "Current Log Channel: None") {
		t.Errorf("text = %q", text)
	}
}

func TestRouterBackup(t *testing.T) {
	s := newTestServer(t)
	if rr := s.do(t, models.RoleAdmin, "PUT", "/api/dashboard", `{"backup_channel": "1"}`); rr.Code != http.StatusOK {
		t.Fatalf("PUT status %d: %s", rr.Code, rr.Body)
	}
	if rr := s.do(t, models.RoleEditor, "POST", "/api/backup", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("editor status %d", rr.Code)
	}
	rr := s.do(t, models.RoleAdmin, "POST", "/api/backup", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status %d: %s", rr.Code, rr.Body)
	}
	if got := decodeBody(t, rr); got["action"] != "backup" || got["channel"] != "1" {
		t.Errorf("result = %v", got)
	}
	rr = s.do(t, models.RoleViewer, "GET", "/api/backups?n=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET backups status %d", rr.Code)
	}
	if items, _ := decodeBody(t, rr)["backups"].([]any); len(items) != 1 {
		t.Errorf("backups = %s", rr.Body)
	}
	rr = s.do(t, models.RoleAdmin, "POST", "/api/backup", "")
	if rr.Code != http.StatusTooManyRequests || errorCode(t, rr) != "RATE_LIMITED" {
		t.Errorf("second backup: status %d: %s", rr.Code, rr.Body)
	}
}
