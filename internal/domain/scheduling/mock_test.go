package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthassist/healthassist/internal/platform/notification"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) matches(d *Doctor, f DoctorFilter) bool {
	if f.DoctorID != nil && d.ID != *f.DoctorID {
		return false
	}
	if f.SpecializationID != nil && (d.SpecializationID == nil || *d.SpecializationID != *f.SpecializationID) {
		return false
	}
	if f.HospitalID != nil {
		for _, h := range d.Hospitals {
			if h.ID == *f.HospitalID {
				return true
			}
		}
		return false
	}
	return true
}

func (m *mockDoctorRepo) FindScheduled(_ context.Context, weekday time.Weekday, f DoctorFilter) ([]*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Doctor
	for _, d := range m.doctors {
		if !m.matches(d, f) {
			continue
		}
		cp := *d
		cp.Schedules = nil
		for _, r := range d.Schedules {
			if r.DayOfWeek == weekday {
				cp.Schedules = append(cp.Schedules, r)
			}
		}
		if len(cp.Schedules) > 0 {
			out = append(out, &cp)
		}
	}
	sortDoctors(out)
	return out, nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) List(_ context.Context, f DoctorFilter) ([]*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Doctor
	for _, d := range m.doctors {
		if m.matches(d, f) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortDoctors(out)
	return out, nil
}

func (m *mockDoctorRepo) CreateHospital(context.Context, *Hospital) error             { return nil }
func (m *mockDoctorRepo) CreateSpecialization(context.Context, *Specialization) error { return nil }

func (m *mockDoctorRepo) CreateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.Schedules = nil
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) AddSchedule(_ context.Context, r *ScheduleRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.doctors[r.DoctorID]
	d.Schedules = append(d.Schedules, *r)
	return nil
}

func sortDoctors(ds []*Doctor) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}

// mockAppointmentRepo enforces the one-live-appointment-per-slot rule the
// way the partial unique index does.
type mockAppointmentRepo struct {
	mu      sync.Mutex
	doctors *mockDoctorRepo
	appts   map[uuid.UUID]*Appointment
}

func newMockAppointmentRepo(doctors *mockDoctorRepo) *mockAppointmentRepo {
	return &mockAppointmentRepo{doctors: doctors, appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appts {
		if existing.DoctorID == a.DoctorID && existing.AppointmentTime.Equal(a.AppointmentTime) && existing.Status != StatusCancelled {
			return ErrSlotTaken
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	a, ok := m.appts[id]
	var cp Appointment
	if ok {
		cp = *a
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if d, err := m.doctors.GetByID(ctx, cp.DoctorID); err == nil {
		cp.DoctorName = d.Name
		if d.Specialization != nil {
			cp.Specialization = d.Specialization.Name
		}
	}
	return &cp, nil
}

func (m *mockAppointmentRepo) ListBooked(_ context.Context, doctorIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool)
	for _, id := range doctorIDs {
		want[id] = true
	}
	var out []*Appointment
	for _, a := range m.appts {
		if want[a.DoctorID] && a.Status != StatusCancelled &&
			!a.AppointmentTime.Before(from) && a.AppointmentTime.Before(to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusScheduled {
		return false, nil
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockAppointmentRepo) ListByUser(_ context.Context, userID uuid.UUID, f AppointmentFilter) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for _, a := range m.appts {
		if a.UserID != userID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != nil && a.AppointmentTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.AppointmentTime.Before(*f.To) {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AppointmentTime.Before(all[j].AppointmentTime) })
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

// set forces an appointment into a state the API cannot reach directly.
func (m *mockAppointmentRepo) set(id uuid.UUID, fn func(a *Appointment)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.appts[id])
}

type recordingNotifier struct {
	mu        sync.Mutex
	booked    []notification.AppointmentEvent
	cancelled []notification.AppointmentEvent
}

func (n *recordingNotifier) AppointmentBooked(_ context.Context, ev notification.AppointmentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, ev)
	return nil
}

func (n *recordingNotifier) AppointmentCancelled(_ context.Context, ev notification.AppointmentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, ev)
	return nil
}
