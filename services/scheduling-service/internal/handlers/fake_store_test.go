package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/storage"
)

// fakeStore is an in-memory Store. A single mutex makes AppendAppointment a true compare-and-append.
type fakeStore struct {
	mu            sync.Mutex
	seq           int
	professionals map[string]model.Professional
	services      map[string]model.Service
	appointments  []model.Appointment

	// afterListDay runs once, outside the lock, after ListAppointmentsForDay has read the day.
	afterListDay func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		professionals: map[string]model.Professional{},
		services:      map[string]model.Service{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) professional(scope tenancy.Scope, id string) (model.Professional, error) {
	p, ok := f.professionals[id]
	if !ok || p.TenantID != scope.TenantID {
		return model.Professional{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateProfessional(_ context.Context, scope tenancy.Scope, p model.Professional) (model.Professional, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID("prof")
	p.TenantID = scope.TenantID
	p.CreatedAt = time.Now()
	f.professionals[p.ID] = p
	return p, nil
}

func (f *fakeStore) ListProfessionals(_ context.Context, scope tenancy.Scope) ([]model.Professional, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Professional
	for _, p := range f.professionals {
		if p.TenantID == scope.TenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetProfessional(_ context.Context, scope tenancy.Scope, id string) (model.Professional, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.professional(scope, id)
}

func (f *fakeStore) PutWeeklyRule(_ context.Context, scope tenancy.Scope, professionalID string, rule availability.WeeklyRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.professional(scope, professionalID)
	if err != nil {
		return err
	}
	var weekly []availability.WeeklyRule
	for _, r := range p.Schedule.Weekly {
		if r.Weekday != rule.Weekday {
			weekly = append(weekly, r)
		}
	}
	p.Schedule.Weekly = append(weekly, rule)
	f.professionals[p.ID] = p
	return nil
}

func (f *fakeStore) PutException(_ context.Context, scope tenancy.Scope, professionalID string, exc availability.DateException) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.professional(scope, professionalID)
	if err != nil {
		return err
	}
	var excs []availability.DateException
	for _, e := range p.Schedule.Exceptions {
		if e.Date != exc.Date {
			excs = append(excs, e)
		}
	}
	p.Schedule.Exceptions = append(excs, exc)
	f.professionals[p.ID] = p
	return nil
}

func (f *fakeStore) DeleteException(_ context.Context, scope tenancy.Scope, professionalID string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.professional(scope, professionalID)
	if err != nil {
		return err
	}
	day := date.Format(availability.DateLayout)
	var excs []availability.DateException
	for _, e := range p.Schedule.Exceptions {
		if e.Date != day {
			excs = append(excs, e)
		}
	}
	if len(excs) == len(p.Schedule.Exceptions) {
		return storage.ErrNotFound
	}
	p.Schedule.Exceptions = excs
	f.professionals[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateSlotInterval(_ context.Context, scope tenancy.Scope, professionalID string, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.professional(scope, professionalID)
	if err != nil {
		return err
	}
	p.Schedule.SlotInterval = minutes
	f.professionals[p.ID] = p
	return nil
}

func (f *fakeStore) CreateService(_ context.Context, scope tenancy.Scope, svc model.Service) (model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc.ID = f.nextID("svc")
	svc.TenantID = scope.TenantID
	if svc.Price == "" {
		svc.Price = "0"
	}
	f.services[svc.ID] = svc
	return svc, nil
}

func (f *fakeStore) ListServices(_ context.Context, scope tenancy.Scope) ([]model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Service
	for _, s := range f.services {
		if s.TenantID == scope.TenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetService(_ context.Context, scope tenancy.Scope, id string) (model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok || s.TenantID != scope.TenantID {
		return model.Service{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) day(tenantID, professionalID string, date time.Time) []model.Appointment {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.TenantID == tenantID && a.ProfessionalID == professionalID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeStore) ListAppointmentsForDay(_ context.Context, scope tenancy.Scope, professionalID string, date time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	out := f.day(scope.TenantID, professionalID, date)
	hook := f.afterListDay
	f.afterListDay = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeStore) AppendAppointment(_ context.Context, scope tenancy.Scope, appt model.Appointment, check func([]model.Appointment) error) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.professional(scope, appt.ProfessionalID); err != nil {
		return model.Appointment{}, err
	}
	if err := check(f.day(scope.TenantID, appt.ProfessionalID, appt.Date)); err != nil {
		return model.Appointment{}, err
	}
	appt.ID = f.nextID("appt")
	appt.TenantID = scope.TenantID
	appt.CreatedBy = scope.ActorID
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	f.appointments = append(f.appointments, appt)
	return appt, nil
}

func (f *fakeStore) SetAppointmentStatus(_ context.Context, scope tenancy.Scope, id string, next model.Status) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.appointments {
		if a.ID != id || a.TenantID != scope.TenantID {
			continue
		}
		if !a.Status.CanTransition(next) {
			return model.Appointment{}, fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, a.Status, next)
		}
		f.appointments[i].Status = next
		return f.appointments[i], nil
	}
	return model.Appointment{}, storage.ErrNotFound
}

// memCache is a SlotCache addressed by version counters like slotcache.Cache. Entries are never deleted, so a
// write under an outdated key stays in the map and a wrong key choice shows up as a stale read.
type memCache struct {
	mu          sync.Mutex
	profVersion map[string]int
	dayVersion  map[string]int
	entries     map[string][]availability.Clock
	hits        int
}

func newMemCache() *memCache {
	return &memCache{
		profVersion: map[string]int{},
		dayVersion:  map[string]int{},
		entries:     map[string][]availability.Clock{},
	}
}

func (c *memCache) Get(_ context.Context, tenantID, professionalID string, date time.Time, duration int) ([]availability.Clock, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prof := tenantID + "/" + professionalID
	day := prof + "/" + date.Format(availability.DateLayout)
	key := fmt.Sprintf("%s/v%d.%d", day, c.profVersion[prof], c.dayVersion[day])
	s, ok := c.entries[fmt.Sprintf("%s/%d", key, duration)]
	if ok {
		c.hits++
	}
	return s, key, ok
}

func (c *memCache) Put(_ context.Context, key string, duration int, slots []availability.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fmt.Sprintf("%s/%d", key, duration)] = slots
}

func (c *memCache) InvalidateProfessional(_ context.Context, tenantID, professionalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profVersion[tenantID+"/"+professionalID]++
}

func (c *memCache) InvalidateDay(_ context.Context, tenantID, professionalID string, date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayVersion[tenantID+"/"+professionalID+"/"+date.Format(availability.DateLayout)]++
}
