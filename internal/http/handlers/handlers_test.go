package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
	"github.com/meridian-crm/go-scheduling-backend/internal/services"
)

// ---- stubs to satisfy handlers.New() dependencies ----

type stubEngine struct {
	create   func(ctx context.Context, req *domain.SchedulingRequest) error
	process  func(ctx context.Context, msg domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error)
	cancel   func(ctx context.Context, id, actor string) error
	complete func(ctx context.Context, id string) error
}

func (s stubEngine) CreateRequest(ctx context.Context, req *domain.SchedulingRequest) error {
	if s.create != nil {
		return s.create(ctx, req)
	}
	return nil
}

func (s stubEngine) ProcessReply(ctx context.Context, msg domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error) {
	if s.process != nil {
		return s.process(ctx, msg)
	}
	return nil, domain.Interpretation{}, nil
}

func (s stubEngine) Cancel(ctx context.Context, id, actor string) error {
	if s.cancel != nil {
		return s.cancel(ctx, id, actor)
	}
	return nil
}

func (s stubEngine) Complete(ctx context.Context, id string) error {
	if s.complete != nil {
		return s.complete(ctx, id)
	}
	return nil
}

type stubSweeper struct {
	run func(ctx context.Context) (services.SweepReport, error)
}

func (s stubSweeper) Run(ctx context.Context) (services.SweepReport, error) {
	if s.run != nil {
		return s.run(ctx)
	}
	return services.SweepReport{}, nil
}

type stubAttention struct {
	list    func(ctx context.Context, limit int) ([]domain.AttentionItem, error)
	resolve func(ctx context.Context, id string) error
}

func (s stubAttention) ListOpen(ctx context.Context, limit int) ([]domain.AttentionItem, error) {
	if s.list != nil {
		return s.list(ctx, limit)
	}
	return nil, nil
}

func (s stubAttention) Resolve(ctx context.Context, id string) error {
	if s.resolve != nil {
		return s.resolve(ctx, id)
	}
	return nil
}

type stubSlots struct {
	check func(ctx context.Context, emails []string, start time.Time, durationMinutes int) (bool, error)
}

func (s stubSlots) CheckSlot(ctx context.Context, emails []string, start time.Time, durationMinutes int) (bool, error) {
	if s.check != nil {
		return s.check(ctx, emails, start, durationMinutes)
	}
	return true, nil
}

// ---- shared helpers ----

func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handlers.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedRequest(t *testing.T, db *gorm.DB, status string) *domain.SchedulingRequest {
	t.Helper()
	r := &domain.SchedulingRequest{
		Title:           "Platform demo",
		CompanyRef:      "acme-042",
		MeetingType:     "demo",
		DurationMinutes: 30,
		Status:          status,
		EmailThreadID:   "thread-" + status + "-" + time.Now().Format("150405.000000000"),
		CreatedBy:       "test",
		Attendees: []domain.SchedulingAttendee{
			{Side: domain.SideInternal, Email: "ae@ours.io", Name: "Alex Rivera", IsOrganizer: true},
			{Side: domain.SideExternal, Email: "pat@acme.com", Name: "Pat Jones", IsPrimaryContact: true},
		},
	}
	if err := repo.CreateRequest(context.Background(), db, r); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return r
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListRequests)
	r.GET("/requests/:id", h.GetRequest)
	r.GET("/requests/:id/actions", h.ListActions)
	r.POST("/requests/:id/cancel", h.CancelRequest)
	r.POST("/requests/:id/complete", h.CompleteRequest)
	r.POST("/inbound/replies", h.ProcessReply)
	r.POST("/automation/sweep", h.RunSweep)
	r.GET("/attention", h.ListAttention)
	r.POST("/attention/:id/resolve", h.ResolveAttention)
	r.GET("/stats", h.GetStats)
	r.GET("/availability", h.CheckAvailability)
	return r
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("error envelope json: %v (%s)", err, body)
	}
	if er.Code == "" || er.Message == "" {
		t.Fatalf("error envelope missing fields: %+v", er)
	}
	return er
}

const validCreateBody = `{
	"title": "Platform demo",
	"company_ref": "acme-042",
	"meeting_type": "demo",
	"duration_minutes": 30,
	"email_thread_id": "thread-7f3a",
	"attendees": [
		{"side": "internal", "email": "ae@ours.io", "name": "Alex Rivera", "is_organizer": true},
		{"side": "external", "email": "pat@acme.com", "name": "Pat Jones", "is_primary_contact": true}
	]
}`

// ---- request lifecycle ----

func TestCreateRequest_BindingError(t *testing.T) {
	eng := stubEngine{create: func(context.Context, *domain.SchedulingRequest) error {
		t.Fatal("engine should not be called on binding error")
		return nil
	}}
	r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{"title":""}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	decodeError(t, w.Body.Bytes())
}

func TestCreateRequest_ErrorMappings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no_organizer", services.ErrNoOrganizer, http.StatusBadRequest, ErrCodeBadRequest},
		{"no_external", services.ErrNoExternalAttendee, http.StatusBadRequest, ErrCodeBadRequest},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError, ErrCodeCreateFailed},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng := stubEngine{create: func(context.Context, *domain.SchedulingRequest) error { return tc.err }}
			r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(validCreateBody))
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d. body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			if er := decodeError(t, w.Body.Bytes()); er.Code != tc.wantCode {
				t.Fatalf("code=%q, want %q", er.Code, tc.wantCode)
			}
		})
	}
}

func TestCreateRequest_Success201(t *testing.T) {
	eng := stubEngine{create: func(_ context.Context, req *domain.SchedulingRequest) error {
		if req.Title != "Platform demo" || len(req.Attendees) != 2 {
			t.Fatalf("payload not mapped: %+v", req)
		}
		req.ID = "11111111-1111-1111-1111-111111111111"
		req.Status = domain.StatusAwaitingResponse
		return nil
	}}
	r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(validCreateBody))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var got domain.SchedulingRequest
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.ID == "" || got.Status != domain.StatusAwaitingResponse {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestGetRequest(t *testing.T) {
	db := newHandlersDB(t)
	seeded := seedRequest(t, db, domain.StatusNegotiating)
	r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, db))

	t.Run("invalid uuid", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/not-a-uuid", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/22222222-2222-2222-2222-222222222222", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("ok with attendees", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/"+seeded.ID, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got domain.SchedulingRequest
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("json: %v", err)
		}
		if got.ID != seeded.ID || len(got.Attendees) != 2 {
			t.Fatalf("unexpected body: %+v", got)
		}
	})
}

func TestListRequests_PaginationAndFilter(t *testing.T) {
	db := newHandlersDB(t)
	for i := 0; i < 3; i++ {
		seedRequest(t, db, domain.StatusNegotiating)
	}
	seedRequest(t, db, domain.StatusConfirmed)
	r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, db))

	t.Run("bad status filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests?status=bogus", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("paged", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests?status=negotiating&page=1&page_size=2", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got ListRequestsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("json: %v", err)
		}
		if len(got.Requests) != 2 || got.Pagination.Total != 3 || !got.Pagination.HasNext {
			t.Fatalf("unexpected page: %+v", got.Pagination)
		}
	})
}

func TestListActions(t *testing.T) {
	db := newHandlersDB(t)
	seeded := seedRequest(t, db, domain.StatusNegotiating)
	if err := repo.AppendAction(context.Background(), db, &domain.SchedulingAction{
		RequestID:      seeded.ID,
		ActionType:     domain.ActionEmailSent,
		Actor:          domain.ActorSystem,
		PreviousStatus: seeded.Status,
		NewStatus:      seeded.Status,
	}); err != nil {
		t.Fatal(err)
	}
	r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/"+seeded.ID+"/actions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got ListActionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(got.Actions) != 1 || got.Actions[0].ActionType != domain.ActionEmailSent {
		t.Fatalf("unexpected actions: %+v", got.Actions)
	}
}

func TestCancelRequest_ErrorMappings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not_found", services.ErrRequestNotFound, http.StatusNotFound},
		{"terminal", services.ErrTerminalState, http.StatusConflict},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	const id = "33333333-3333-3333-3333-333333333333"

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng := stubEngine{cancel: func(_ context.Context, gotID, actor string) error {
				if gotID != id || actor != domain.ActorUser {
					t.Fatalf("args mismatch: %q %q", gotID, actor)
				}
				return tc.err
			}}
			r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/"+id+"/cancel", nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantStatus)
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/"+id+"/cancel", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	})
}

func TestCompleteRequest_NotConfirmed409(t *testing.T) {
	const id = "44444444-4444-4444-4444-444444444444"
	eng := stubEngine{complete: func(context.Context, string) error { return services.ErrNotConfirmed }}
	r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/"+id+"/complete", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if er := decodeError(t, w.Body.Bytes()); er.Code != ErrCodeNotConfirmed {
		t.Fatalf("code=%q", er.Code)
	}
}

// ---- inbound replies ----

const validReplyBody = `{
	"id": "msg-1",
	"subject": "RE: Platform demo",
	"body": "Tuesday at 2pm works for me",
	"from_address": "pat@acme.com",
	"conversationId": "thread-7f3a"
}`

func TestProcessReply_Success(t *testing.T) {
	sel := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	eng := stubEngine{process: func(_ context.Context, msg domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error) {
		if msg.ID != "msg-1" || msg.ConversationID != "thread-7f3a" || msg.FromAddress != "pat@acme.com" {
			t.Fatalf("message not mapped: %+v", msg)
		}
		return &domain.SchedulingRequest{ID: "r1", Status: domain.StatusConfirmed},
			domain.Interpretation{Intent: domain.IntentAccept, SelectedTime: &sel, Confidence: 0.9}, nil
	}}
	r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/inbound/replies", bytes.NewBufferString(validReplyBody)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got ProcessReplyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Duplicate || got.Interpretation.Intent != domain.IntentAccept || got.Request.Status != domain.StatusConfirmed {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestProcessReply_DuplicateAcked200(t *testing.T) {
	eng := stubEngine{process: func(context.Context, domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error) {
		return &domain.SchedulingRequest{ID: "r1"}, domain.Interpretation{}, services.ErrDuplicateMessage
	}}
	r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/inbound/replies", bytes.NewBufferString(validReplyBody)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got ProcessReplyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !got.Duplicate {
		t.Fatal("expected duplicate=true")
	}
}

func TestProcessReply_ErrorMappings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown_thread", services.ErrUnknownThread, http.StatusNotFound, ErrCodeUnknownThread},
		{"terminal", services.ErrTerminalState, http.StatusConflict, ErrCodeTerminalState},
		{"internal", errors.New("interpreter down"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng := stubEngine{process: func(context.Context, domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error) {
				return nil, domain.Interpretation{}, tc.err
			}}
			r := newRouter(New(eng, stubSweeper{}, stubAttention{}, stubSlots{}, nil))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/inbound/replies", bytes.NewBufferString(validReplyBody)))
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantStatus)
			}
			if er := decodeError(t, w.Body.Bytes()); er.Code != tc.wantCode {
				t.Fatalf("code=%q, want %q", er.Code, tc.wantCode)
			}
		})
	}
}

// ---- automation and operations ----

func TestRunSweep(t *testing.T) {
	sw := stubSweeper{run: func(context.Context) (services.SweepReport, error) {
		return services.SweepReport{Due: 3, Claimed: 3, Handled: 2, Failed: 1}, nil
	}}
	r := newRouter(New(stubEngine{}, sw, stubAttention{}, stubSlots{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/automation/sweep", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got services.SweepReport
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Handled != 2 || got.Failed != 1 {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestListAttention_ClampsLimit(t *testing.T) {
	var gotLimit int
	att := stubAttention{list: func(_ context.Context, limit int) ([]domain.AttentionItem, error) {
		gotLimit = limit
		return []domain.AttentionItem{{ID: "a1", Reason: domain.AttentionUnclear}}, nil
	}}
	r := newRouter(New(stubEngine{}, stubSweeper{}, att, stubSlots{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attention?limit=9999", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotLimit != 200 {
		t.Fatalf("limit not clamped: %d", gotLimit)
	}
}

func TestResolveAttention(t *testing.T) {
	const id = "55555555-5555-5555-5555-555555555555"

	t.Run("not found", func(t *testing.T) {
		att := stubAttention{resolve: func(context.Context, string) error { return services.ErrRequestNotFound }}
		r := newRouter(New(stubEngine{}, stubSweeper{}, att, stubSlots{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/attention/"+id+"/resolve", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/attention/"+id+"/resolve", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	})
}

func TestGetStats(t *testing.T) {
	db := newHandlersDB(t)
	seedRequest(t, db, domain.StatusNegotiating)
	seedRequest(t, db, domain.StatusConfirmed)
	r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("empty stats body")
	}
}

// ---- availability probe ----

func TestCheckAvailability(t *testing.T) {
	t.Run("missing emails", func(t *testing.T) {
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability?start=2026-09-01T14:00:00Z", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("bad start", func(t *testing.T) {
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, stubSlots{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability?emails=a@b.com&start=tomorrow", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("provider error maps to 502", func(t *testing.T) {
		sl := stubSlots{check: func(context.Context, []string, time.Time, int) (bool, error) {
			return false, errors.New("graph timeout")
		}}
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, sl, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability?emails=a@b.com&start=2026-09-01T14:00:00Z", nil))
		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
	})

	t.Run("ok", func(t *testing.T) {
		sl := stubSlots{check: func(_ context.Context, emails []string, start time.Time, duration int) (bool, error) {
			if len(emails) != 2 || duration != 45 {
				t.Fatalf("args mismatch: %v %d", emails, duration)
			}
			return true, nil
		}}
		r := newRouter(New(stubEngine{}, stubSweeper{}, stubAttention{}, sl, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/availability?emails=a@b.com,%20c@d.com&start=2026-09-01T14:00:00Z&duration=45", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got AvailabilityResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("json: %v", err)
		}
		if !got.Available || got.DurationMinutes != 45 {
			t.Fatalf("unexpected response: %+v", got)
		}
	})
}
