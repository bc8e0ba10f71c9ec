package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already booked")
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Hospital struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
}

type Specialization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

type Doctor struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Qualifications   string          `json:"qualifications,omitempty"`
	SpecializationID *uuid.UUID      `json:"-"`
	Specialization   *Specialization `json:"specialization"`
	Hospitals        []Hospital      `json:"hospitals"`
	Schedules        []ScheduleRule  `json:"-"`
}

// ScheduleRule is a recurring weekly window in which a doctor sees patients.
// Start and End are offsets from midnight UTC.
type ScheduleRule struct {
	ID          uuid.UUID     `json:"id"`
	DoctorID    uuid.UUID     `json:"doctorId"`
	DayOfWeek   time.Weekday  `json:"dayOfWeek"`
	Start       time.Duration `json:"-"`
	End         time.Duration `json:"-"`
	SlotMinutes int           `json:"slotDurationMinutes"`
}

func (r ScheduleRule) slotLength() time.Duration {
	return time.Duration(r.SlotMinutes) * time.Minute
}

// covers reports whether offset (from midnight) falls in [Start, End).
func (r ScheduleRule) covers(offset time.Duration) bool {
	return offset >= r.Start && offset < r.End
}

// aligned reports whether offset is a slot start of the rule.
func (r ScheduleRule) aligned(offset time.Duration) bool {
	return r.SlotMinutes > 0 && (offset-r.Start)%r.slotLength() == 0
}

func (r ScheduleRule) String() string {
	return fmt.Sprintf("%s %s-%s/%dm", r.DayOfWeek, clock(r.Start), clock(r.End), r.SlotMinutes)
}

// clock formats a midnight offset as HH:MM.
func clock(d time.Duration) string {
	m := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"userId"`
	DoctorID        uuid.UUID         `json:"doctorId"`
	AppointmentTime time.Time         `json:"appointmentTime"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`

	DoctorName     string `json:"doctorName,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// Slot is a bookable start time derived from a schedule rule.
type Slot struct {
	Time     string    `json:"time"`
	DateTime time.Time `json:"dateTime"`
}

// DoctorAvailability is one doctor's free slots on a date.
type DoctorAvailability struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Qualifications string          `json:"qualifications,omitempty"`
	Specialization *Specialization `json:"specialization"`
	Hospitals      []Hospital      `json:"hospitals"`
	Slots          []Slot          `json:"slots"`
}

// DoctorFilter narrows doctor queries. Nil fields do not filter.
type DoctorFilter struct {
	DoctorID         *uuid.UUID
	SpecializationID *uuid.UUID
	HospitalID       *uuid.UUID
}

// AppointmentFilter narrows a user's appointment listing. From is inclusive,
// To exclusive.
type AppointmentFilter struct {
	Status AppointmentStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
