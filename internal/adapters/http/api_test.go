package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

func newTestRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Sessions: app.NewSessionManager(meeting.DefaultOptions()),
	}
	ctl := signal.NewSignalWSController(o, signal.NewRateLimiter(5, time.Minute), webrtc.Configuration{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o, ctl), o
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPI_SessionLifecycle(t *testing.T) {
	r, o := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/sessions", `{"policy":"open"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	var info domain.SessionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Policy != domain.AdmissionOpen || info.Lifecycle != domain.LifecycleLobby {
		t.Fatalf("info = %+v", info)
	}
	path := fmt.Sprintf("/api/sessions/%s", info.ID)

	if _, err := o.JoinSession("client-1", info.ID, "Host"); err != nil {
		t.Fatalf("join: %v", err)
	}

	w = do(r, http.MethodGet, path+"/participants", "")
	var parts struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &parts); err != nil || len(parts.Participants) != 1 {
		t.Fatalf("participants = %s (%v)", w.Body, err)
	}
	if parts.Participants[0].Role != domain.RoleHost {
		t.Fatalf("role = %s", parts.Participants[0].Role)
	}

	w = do(r, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), string(info.ID)) {
		t.Fatalf("list = %d: %s", w.Code, w.Body)
	}

	if w = do(r, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w = do(r, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

func TestAPI_Admissions(t *testing.T) {
	r, o := newTestRouter(t)
	o.JoinSession("host", "room", "Host")
	o.JoinSession("guest", "room", "Guest")

	w := do(r, http.MethodGet, "/api/sessions/room/admissions", "")
	var body struct {
		Pending []domain.AdmissionRequest `json:"pending"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Pending) != 1 || body.Pending[0].ParticipantID != "guest" {
		t.Fatalf("pending = %+v", body.Pending)
	}
}

func TestAPI_Errors(t *testing.T) {
	r, _ := newTestRouter(t)
	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
		{http.MethodGet, "/api/sessions/nope/participants", "", http.StatusNotFound},
		{http.MethodDelete, "/api/sessions/nope", "", http.StatusNotFound},
		{http.MethodPost, "/api/sessions", `{"policy":"lottery"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/sessions", `{`, http.StatusBadRequest},
		{http.MethodPost, "/api/sessions", "", http.StatusCreated},
	}
	for _, tt := range tests {
		if w := do(r, tt.method, tt.path, tt.body); w.Code != tt.want {
			t.Errorf("%s %s %q = %d, want %d", tt.method, tt.path, tt.body, w.Code, tt.want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("kick: %w", domain.ErrForbidden), http.StatusForbidden},
		{domain.ErrSessionNotActive, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == clientTokenCookie {
			token = c.Value
		}
	}
	if len(token) != 36 {
		t.Fatalf("client token = %q", token)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(&http.Cookie{Name: clientTokenCookie, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == clientTokenCookie {
			t.Fatalf("token reissued: %q", c.Value)
		}
	}
}
