package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridian-crm/go-scheduling-backend/internal/config"
	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/interpret"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
)

// Friday noon; the grounding window runs Saturday Aug 29 .. Friday Sep 18.
var frozenNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func frozenClock() time.Time { return frozenNow }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testCfg() config.SchedulingConfig {
	return config.SchedulingConfig{
		LookaheadDays:       21,
		ProposeCount:        3,
		MinConfidence:       0.55,
		MaxAttempts:         4,
		FollowUpDelay:       72 * time.Hour,
		ReminderLead:        24 * time.Hour,
		NoShowGrace:         30 * time.Minute,
		ReengageDelay:       4 * time.Hour,
		PauseDuration:       7 * 24 * time.Hour,
		EscalateAt:          2,
		PauseAt:             3,
		CancelAt:            4,
		SweepBatchSize:      25,
		AvailabilityTimeout: time.Second,
		InterpreterTimeout:  time.Second,
		SendTimeout:         time.Second,
	}
}

// ----- Fakes -----

type fakeSender struct {
	sent []OutboundMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg OutboundMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("m-%d", len(f.sent)), nil
}

type fakeBooker struct {
	booked []BookingRequest
	err    error
}

func (f *fakeBooker) Book(_ context.Context, br BookingRequest) (Booking, error) {
	if f.err != nil {
		return Booking{}, f.err
	}
	f.booked = append(f.booked, br)
	return Booking{
		EventID: fmt.Sprintf("evt-%d", len(f.booked)),
		WebLink: "https://calendar.example/evt",
	}, nil
}

type fakeProvider struct {
	schedules []AttendeeSchedule
	err       error
}

func (f *fakeProvider) Query(_ context.Context, _ []string, _, _ time.Time) ([]AttendeeSchedule, error) {
	return f.schedules, f.err
}

type scriptedInterpreter struct {
	out domain.Interpretation
	err error
}

func (s *scriptedInterpreter) Classify(_ context.Context, _ interpret.Input) (domain.Interpretation, error) {
	return s.out, s.err
}

type fakeNotifier struct {
	items []domain.AttentionItem
}

func (f *fakeNotifier) NotifyAttention(_ context.Context, item domain.AttentionItem, _ *domain.SchedulingRequest) error {
	f.items = append(f.items, item)
	return nil
}

// ----- Engine wiring -----

type engineDeps struct {
	sender   *fakeSender
	booker   *fakeBooker
	provider *fakeProvider
	notifier *fakeNotifier
	interp   *scriptedInterpreter
}

func newEngine(t *testing.T, db *gorm.DB) (*NegotiationService, *engineDeps) {
	t.Helper()
	d := &engineDeps{
		sender:   &fakeSender{},
		booker:   &fakeBooker{},
		provider: &fakeProvider{},
		notifier: &fakeNotifier{},
		interp:   &scriptedInterpreter{},
	}
	avail := &AvailabilityService{Provider: d.provider, Timeout: time.Second}
	eng := &NegotiationService{
		DB:           db,
		Interpreter:  d.interp,
		Availability: avail,
		Composer:     &Composer{DB: db, Now: frozenClock},
		Sender:       d.sender,
		Booker:       d.booker,
		Attention:    &AttentionService{DB: db, Notifier: d.notifier, Now: frozenClock},
		Cfg:          testCfg(),
		ReceiptTTL:   7 * 24 * time.Hour,
		Now:          frozenClock,
	}
	return eng, d
}

func newSweep(eng *NegotiationService) *SweepService {
	return &SweepService{DB: eng.DB, Engine: eng, Cfg: eng.Cfg, Now: frozenClock}
}

// seedNegotiation inserts a request in awaiting_response with an outreach
// already on the books, the state most replies arrive in.
func seedNegotiation(t *testing.T, db *gorm.DB) *domain.SchedulingRequest {
	t.Helper()
	r := &domain.SchedulingRequest{
		Title:           "Platform demo",
		CompanyRef:      "acme-01",
		MeetingType:     "demo",
		DurationMinutes: 30,
		Status:          domain.StatusAwaitingResponse,
		EmailThreadID:   fmt.Sprintf("thread-%d", time.Now().UnixNano()),
		CreatedBy:       "u1",
		AttemptCount:    1,
		ProposedTimes: domain.TimeList{
			time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 2, 15, 0, 0, 0, time.UTC),
		},
		Attendees: []domain.SchedulingAttendee{
			{Side: domain.SideInternal, IsOrganizer: true, Email: "ae@ours.io", Name: "Alex Rivera"},
			{Side: domain.SideExternal, IsPrimaryContact: true, Email: "pat@acme.com", Name: "pat jones"},
		},
	}
	if err := repo.CreateRequest(context.Background(), db, r); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return r
}

func reply(r *domain.SchedulingRequest, body string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:               fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		Subject:          "Re: " + r.Title,
		Body:             body,
		FromAddress:      "pat@acme.com",
		ReceivedDateTime: frozenNow,
		ConversationID:   r.EmailThreadID,
	}
}

func mustGet(t *testing.T, db *gorm.DB, id string) *domain.SchedulingRequest {
	t.Helper()
	got, err := repo.GetRequest(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	return got
}

func mustActions(t *testing.T, db *gorm.DB, id string) []domain.SchedulingAction {
	t.Helper()
	acts, err := repo.ListActions(context.Background(), db, id)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	return acts
}

func actionTypes(t *testing.T, db *gorm.DB, id string) []string {
	t.Helper()
	acts := mustActions(t, db, id)
	out := make([]string, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.ActionType)
	}
	return out
}

func hasType(types []string, want string) bool {
	for _, tp := range types {
		if tp == want {
			return true
		}
	}
	return false
}
