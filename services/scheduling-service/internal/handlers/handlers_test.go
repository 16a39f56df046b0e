package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
	profID  = "prof-seed"
	svcID   = "svc-seed"
	monday  = "2026-01-26"
	sunday  = "2026-01-25"
	tuesday = "2026-01-27"
)

type testEnv struct {
	store   *fakeStore
	cache   *memCache
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	engine, err := availability.NewEngine(availability.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store := newFakeStore()
	store.professionals[profID] = model.Professional{
		ID:       profID,
		TenantID: tenantA,
		Name:     "Dr. Ana",
		Schedule: availability.Schedule{
			Weekly: []availability.WeeklyRule{{
				Weekday:   1,
				Active:    true,
				Intervals: []availability.Interval{clockRange("09:00", "18:00")},
				Breaks:    []availability.Interval{clockRange("12:00", "13:00")},
			}},
			SlotInterval: 60,
		},
	}
	store.services[svcID] = model.Service{ID: svcID, TenantID: tenantA, Name: "Long session", DurationMinutes: 90, Price: "120.00"}

	cache := newMemCache()
	h := NewSchedulingHandler(store, engine, cache, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{DefaultSlotInterval: 60})
	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{store: store, cache: cache, handler: tenancy.Middleware("")(mux)}
}

func clockRange(start, end string) availability.Interval {
	return availability.Interval{Start: availability.MustClock(start), End: availability.MustClock(end)}
}

func (e *testEnv) do(t *testing.T, tenant, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if tenant != "" {
		req.Header.Set(tenancy.TenantHeader, tenant)
		req.Header.Set(tenancy.ActorHeader, "actor-1")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (status %d)", err, rec.Code)
	}
	return v
}

func slotStarts(t *testing.T, e *testEnv, query string) []string {
	t.Helper()
	rec := e.do(t, tenantA, http.MethodGet, "/api/v1/slots?"+query, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[slotsResponse](t, rec)
	out := make([]string, 0, len(resp.Slots))
	for _, s := range resp.Slots {
		out = append(out, s.Start.String())
	}
	return out
}

func book(t *testing.T, e *testEnv, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	if _, ok := body["client_name"]; !ok {
		body["client_name"] = "Client"
	}
	if _, ok := body["professional_id"]; !ok {
		body["professional_id"] = profID
	}
	return e.do(t, tenantA, http.MethodPost, "/api/v1/appointments", body)
}

func TestSlotsWeeklyRuleWithBreak(t *testing.T) {
	e := newTestEnv(t)
	got := slotStarts(t, e, "professional_id="+profID+"&date="+monday)
	want := "09:00,10:00,11:00,13:00,14:00,15:00,16:00,17:00"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %v, want %s", got, want)
	}
}

func TestBookingRemovesSlotDespiteCache(t *testing.T) {
	e := newTestEnv(t)
	query := "professional_id=" + profID + "&date=" + monday
	_ = slotStarts(t, e, query)

	rec := book(t, e, map[string]any{"date": monday, "start": "10:00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: status %d body %s", rec.Code, rec.Body.String())
	}
	appt := decode[appointmentResponse](t, rec)
	if appt.End.String() != "11:00" || appt.Status != model.StatusPending || appt.CreatedBy != "actor-1" {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	got := slotStarts(t, e, query)
	if strings.Join(got, ",") != "09:00,11:00,13:00,14:00,15:00,16:00,17:00" {
		t.Fatalf("booked slot still offered: %v", got)
	}
	_ = slotStarts(t, e, query)
	if e.cache.hits != 1 {
		t.Fatalf("expected exactly one cache hit after recompute, got %d", e.cache.hits)
	}
}

func TestBookingDuringSlotComputationIsNotCached(t *testing.T) {
	e := newTestEnv(t)
	query := "professional_id=" + profID + "&date=" + monday

	// The booking commits after the slot request has read the day but before it writes the cache.
	e.store.afterListDay = func() {
		if rec := book(t, e, map[string]any{"date": monday, "start": "10:00"}); rec.Code != http.StatusCreated {
			t.Fatalf("concurrent book: status %d body %s", rec.Code, rec.Body.String())
		}
	}
	first := slotStarts(t, e, query)
	if strings.Join(first, ",") != "09:00,10:00,11:00,13:00,14:00,15:00,16:00,17:00" {
		t.Fatalf("first read computed from the pre-booking day, got %v", first)
	}

	got := slotStarts(t, e, query)
	if strings.Join(got, ",") != "09:00,11:00,13:00,14:00,15:00,16:00,17:00" {
		t.Fatalf("booked slot served from cache: %v", got)
	}
	if e.cache.hits != 0 {
		t.Fatalf("expected the outdated entry to be skipped, got %d hits", e.cache.hits)
	}
}

func TestBookingRejections(t *testing.T) {
	e := newTestEnv(t)
	if rec := book(t, e, map[string]any{"date": monday, "start": "14:00"}); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		name   string
		date   string
		start  string
		end    string
		reason availability.Outcome
	}{
		{name: "day off", date: sunday, start: "10:00", reason: availability.NoAvailability},
		{name: "before opening", date: monday, start: "08:00", reason: availability.OutsideWorkingHours},
		{name: "past closing", date: monday, start: "17:30", end: "18:30", reason: availability.OutsideWorkingHours},
		{name: "off grid", date: monday, start: "09:30", reason: availability.Misaligned},
		{name: "lunch", date: monday, start: "12:00", reason: availability.BreakConflict},
		{name: "taken", date: monday, start: "14:00", reason: availability.DoubleBooked},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := map[string]any{"date": c.date, "start": c.start}
			if c.end != "" {
				body["end"] = c.end
			}
			rec := book(t, e, body)
			if rec.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body.String())
			}
			if got := decode[httpx.ErrorBody](t, rec); got.Reason != string(c.reason) {
				t.Fatalf("reason = %q, want %q", got.Reason, c.reason)
			}
		})
	}
	if n := len(e.store.appointments); n != 1 {
		t.Fatalf("rejected bookings must not persist, have %d", n)
	}
}

func TestValidateIsDryRun(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, tenantA, http.MethodPost, "/api/v1/appointments/validate", map[string]any{
		"professional_id": profID, "date": monday, "start": "12:30", "end": "13:30",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}
	got := decode[validateResponse](t, rec)
	if got.Valid || got.Outcome != availability.BreakConflict {
		t.Fatalf("unexpected outcome %+v", got)
	}

	rec = e.do(t, tenantA, http.MethodPost, "/api/v1/appointments/validate", map[string]any{
		"professional_id": profID, "date": monday, "start": "15:00",
	})
	if got := decode[validateResponse](t, rec); !got.Valid || got.End.String() != "16:00" {
		t.Fatalf("unexpected outcome %+v", got)
	}
	if len(e.store.appointments) != 0 {
		t.Fatal("validate must not persist anything")
	}
}

func TestMalformedCandidateIsBadRequest(t *testing.T) {
	e := newTestEnv(t)
	for _, body := range []map[string]any{
		{"date": monday, "start": "25:00"},
		{"date": monday, "start": "11:00", "end": "10:00"},
		{"date": "26-01-2026", "start": "10:00"},
		{"date": monday, "start": "23:30", "service_id": svcID},
	} {
		if rec := book(t, e, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d %s", body, rec.Code, rec.Body.String())
		}
	}
}

func TestServiceDurationDrivesSlotsAndBooking(t *testing.T) {
	e := newTestEnv(t)
	got := slotStarts(t, e, "professional_id="+profID+"&date="+monday+"&service_id="+svcID)
	if strings.Join(got, ",") != "09:00,10:00,13:00,14:00,15:00,16:00" {
		t.Fatalf("90 minute slots: %v", got)
	}

	rec := book(t, e, map[string]any{"date": monday, "start": "13:00", "service_id": svcID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body.String())
	}
	if appt := decode[appointmentResponse](t, rec); appt.End.String() != "14:30" || appt.ServiceID != svcID {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	rec = book(t, e, map[string]any{"date": monday, "start": "14:00"})
	if rec.Code != http.StatusConflict || decode[httpx.ErrorBody](t, rec).Reason != string(availability.DoubleBooked) {
		t.Fatalf("expected overlap with 13:00-14:30 to be rejected, got %d", rec.Code)
	}

	rec = book(t, e, map[string]any{"date": monday, "start": "15:00", "end": "15:45", "service_id": svcID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("end disagreeing with service duration: expected 400, got %d", rec.Code)
	}
}

func TestCancelReleasesInterval(t *testing.T) {
	e := newTestEnv(t)
	rec := book(t, e, map[string]any{"date": monday, "start": "15:00"})
	appt := decode[appointmentResponse](t, rec)

	rec = e.do(t, tenantA, http.MethodPost, "/api/v1/appointments/status", map[string]any{"appointment_id": appt.ID, "status": "cancelled"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[appointmentResponse](t, rec); got.Status != model.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	if rec := book(t, e, map[string]any{"date": monday, "start": "15:00"}); rec.Code != http.StatusCreated {
		t.Fatalf("rebook after cancel: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, tenantA, http.MethodPost, "/api/v1/appointments/status", map[string]any{"appointment_id": appt.ID, "status": "CONFIRMED"})
	if rec.Code != http.StatusConflict || decode[httpx.ErrorBody](t, rec).Reason != reasonInvalidTransition {
		t.Fatalf("cancelled appointment must stay cancelled, got %d", rec.Code)
	}

	rec = e.do(t, tenantA, http.MethodGet, "/api/v1/appointments?professional_id="+profID+"&date="+monday, nil)
	list := decode[struct {
		Appointments []appointmentResponse `json:"appointments"`
	}](t, rec)
	if len(list.Appointments) != 2 {
		t.Fatalf("expected both appointments listed, got %d", len(list.Appointments))
	}
}

func TestConcurrentBookingsOnlyOneWins(t *testing.T) {
	e := newTestEnv(t)
	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = book(t, e, map[string]any{"date": monday, "start": "16:00"}).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else if c != http.StatusConflict {
			t.Fatalf("unexpected status %d", c)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one booking to win, got %d", created)
	}
}

func TestTenantIsolation(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, tenantB, http.MethodGet, "/api/v1/slots?professional_id="+profID+"&date="+monday, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other tenant: expected 404, got %d", rec.Code)
	}
	rec = e.do(t, "", http.MethodGet, "/api/v1/slots?professional_id="+profID+"&date="+monday, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing tenant: expected 400, got %d", rec.Code)
	}
	rec = e.do(t, tenantB, http.MethodGet, "/api/v1/professionals", nil)
	list := decode[struct {
		Professionals []professionalResponse `json:"professionals"`
	}](t, rec)
	if len(list.Professionals) != 0 {
		t.Fatalf("tenant b sees %d professionals", len(list.Professionals))
	}
}

func TestWeeklyRuleUpdateInvalidatesCache(t *testing.T) {
	e := newTestEnv(t)
	query := "professional_id=" + profID + "&date=" + tuesday
	if got := slotStarts(t, e, query); len(got) != 0 {
		t.Fatalf("no tuesday rule yet, got %v", got)
	}

	rec := e.do(t, tenantA, http.MethodPut, "/api/v1/professionals/weekly-rules", map[string]any{
		"professional_id": profID,
		"weekday":         2,
		"active":          true,
		"intervals":       []map[string]string{{"start": "08:00", "end": "10:00"}, {"start": "09:00", "end": "11:00"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overlapping intervals: expected 400, got %d", rec.Code)
	}

	rec = e.do(t, tenantA, http.MethodPut, "/api/v1/professionals/weekly-rules", map[string]any{
		"professional_id": profID,
		"weekday":         2,
		"active":          true,
		"intervals":       []map[string]string{{"start": "08:00", "end": "10:00"}, {"start": "14:00", "end": "16:00"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put rule: %d %s", rec.Code, rec.Body.String())
	}
	if got := slotStarts(t, e, query); strings.Join(got, ",") != "08:00,09:00,14:00,15:00" {
		t.Fatalf("split shift slots: %v", got)
	}
}

func TestExceptionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	query := "professional_id=" + profID + "&date=" + monday

	rec := e.do(t, tenantA, http.MethodPut, "/api/v1/professionals/exceptions", map[string]any{
		"professional_id": profID,
		"date":            monday,
		"active":          true,
		"intervals":       []map[string]string{{"start": "10:00", "end": "12:00"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put exception: %d %s", rec.Code, rec.Body.String())
	}
	if got := slotStarts(t, e, query); strings.Join(got, ",") != "10:00,11:00" {
		t.Fatalf("exception slots: %v", got)
	}

	rec = e.do(t, tenantA, http.MethodGet, "/api/v1/professionals/day?"+query, nil)
	day := decode[dayResponse](t, rec)
	if !day.Working || day.Source != availability.SourceException || len(day.Breaks) != 0 {
		t.Fatalf("unexpected resolved day %+v", day)
	}

	rec = e.do(t, tenantA, http.MethodDelete, "/api/v1/professionals/exceptions?"+query, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete exception: %d", rec.Code)
	}
	if got := slotStarts(t, e, query); len(got) != 8 {
		t.Fatalf("weekly rule should apply again, got %v", got)
	}
	rec = e.do(t, tenantA, http.MethodDelete, "/api/v1/professionals/exceptions?"+query, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateProfessionalAndService(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, tenantA, http.MethodPost, "/api/v1/professionals", map[string]any{"name": "Dr. Bo"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create professional: %d %s", rec.Code, rec.Body.String())
	}
	p := decode[professionalResponse](t, rec)
	if p.SlotIntervalMinutes != 60 {
		t.Fatalf("default slot interval = %d", p.SlotIntervalMinutes)
	}

	rec = e.do(t, tenantA, http.MethodPut, "/api/v1/professionals/slot-interval", map[string]any{"professional_id": p.ID, "slot_interval_minutes": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero slot interval: expected 400, got %d", rec.Code)
	}
	rec = e.do(t, tenantA, http.MethodPut, "/api/v1/professionals/slot-interval", map[string]any{"professional_id": p.ID, "slot_interval_minutes": 30})
	if rec.Code != http.StatusOK || decode[professionalResponse](t, rec).SlotIntervalMinutes != 30 {
		t.Fatalf("set slot interval: %d", rec.Code)
	}

	rec = e.do(t, tenantA, http.MethodPost, "/api/v1/services", map[string]any{"name": "Check-up", "duration_minutes": 30, "price": "abc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad price: expected 400, got %d", rec.Code)
	}
	rec = e.do(t, tenantA, http.MethodPost, "/api/v1/services", map[string]any{"name": "Check-up", "duration_minutes": 30, "price": "45.50"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create service: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCorruptStoredScheduleIsServerError(t *testing.T) {
	e := newTestEnv(t)
	p := e.store.professionals[profID]
	p.Schedule.SlotInterval = 0
	e.store.professionals[profID] = p

	rec := e.do(t, tenantA, http.MethodGet, "/api/v1/slots?professional_id="+profID+"&date="+monday, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
