package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	// FindScheduled returns the doctors matching f that have at least one
	// rule on weekday, with those rules, specialization and hospitals loaded.
	FindScheduled(ctx context.Context, weekday time.Weekday, f DoctorFilter) ([]*Doctor, error)
	// GetByID returns ErrNotFound for an unknown doctor. All rules are loaded.
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, f DoctorFilter) ([]*Doctor, error)
}

// CatalogWriter loads reference data: hospitals, specializations, doctors and
// their schedules.
type CatalogWriter interface {
	CreateHospital(ctx context.Context, h *Hospital) error
	CreateSpecialization(ctx context.Context, s *Specialization) error
	CreateDoctor(ctx context.Context, d *Doctor) error
	AddSchedule(ctx context.Context, r *ScheduleRule) error
}

type AppointmentRepository interface {
	// Create returns ErrSlotTaken when a live appointment already holds the
	// doctor and time.
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns the appointment enriched with doctor name and
	// specialization, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListBooked returns non-cancelled appointments of the doctors in
	// [from, to).
	ListBooked(ctx context.Context, doctorIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// Cancel moves a SCHEDULED appointment to CANCELLED. It reports false when
	// the appointment was not SCHEDULED at the time of the update.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f AppointmentFilter) ([]*Appointment, int, error)
}
