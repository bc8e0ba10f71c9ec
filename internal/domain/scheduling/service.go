package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/internal/platform/notification"
	"github.com/healthassist/healthassist/pkg/apperr"
	"github.com/healthassist/healthassist/pkg/pagination"
)

const (
	msgSlotTaken    = "This appointment slot is no longer available. Please refresh availability and choose another time."
	msgOutsideHours = "appointment time is outside the doctor's working hours"
	msgNotAligned   = "appointment time does not match a slot boundary"

	notifyTimeout = 15 * time.Second
)

// TxFunc runs fn in a transaction carried by the context it passes to fn.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Option func(*Service)

func WithTx(tx TxFunc) Option {
	return func(s *Service) { s.tx = tx }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	doctors  DoctorRepository
	appts    AppointmentRepository
	notifier notification.Notifier
	logger   zerolog.Logger
	tx       TxFunc
	now      func() time.Time

	wg sync.WaitGroup
}

func NewService(doctors DoctorRepository, appts AppointmentRepository, notifier notification.Notifier, logger zerolog.Logger, opts ...Option) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	s := &Service{
		doctors:  doctors,
		appts:    appts,
		notifier: notifier,
		logger:   logger,
		tx:       noTx,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetAvailableSlots lists, per doctor working on date's weekday, the slots
// that are neither booked nor already past. Doctors without a free slot are
// left out.
func (s *Service) GetAvailableSlots(ctx context.Context, date string, f DoctorFilter) ([]DoctorAvailability, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, apperr.BadRequest("date must be formatted as YYYY-MM-DD")
	}

	doctors, err := s.doctors.FindScheduled(ctx, day.Weekday(), f)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("available slots: %w", err))
	}
	if len(doctors) == 0 {
		return []DoctorAvailability{}, nil
	}

	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}
	booked, err := s.appts.ListBooked(ctx, ids, day, day.Add(fullDay))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("available slots: %w", err))
	}
	byDoctor := make(map[uuid.UUID][]*Appointment)
	for _, a := range booked {
		byDoctor[a.DoctorID] = append(byDoctor[a.DoctorID], a)
	}

	now := s.now().UTC()
	out := make([]DoctorAvailability, 0, len(doctors))
	for _, d := range doctors {
		slots := AvailableSlots(day, d.Schedules, bookedSet(byDoctor[d.ID]), now)
		if len(slots) == 0 {
			continue
		}
		hospitals := d.Hospitals
		if hospitals == nil {
			hospitals = []Hospital{}
		}
		out = append(out, DoctorAvailability{
			ID:             d.ID,
			Name:           d.Name,
			Qualifications: d.Qualifications,
			Specialization: d.Specialization,
			Hospitals:      hospitals,
			Slots:          slots,
		})
	}
	return out, nil
}

// DoctorAvailability returns one doctor's free slots on date. An unknown
// doctor is NotFound; a doctor with nothing free gets an empty list.
func (s *Service) DoctorAvailability(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	avail, err := s.GetAvailableSlots(ctx, date, DoctorFilter{DoctorID: &doctorID})
	if err != nil {
		return nil, err
	}
	if len(avail) == 0 {
		return []Slot{}, nil
	}
	return avail[0].Slots, nil
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter) ([]*Doctor, error) {
	doctors, err := s.doctors.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list doctors: %w", err))
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return doctors, nil
}

// BookAppointment reserves a slot for the user. Two concurrent requests for
// the same doctor and time cannot both succeed: the loser gets Conflict.
func (s *Service) BookAppointment(ctx context.Context, userID, doctorID uuid.UUID, at time.Time, notes string) (*Appointment, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.BadRequest("doctorId is required")
	}
	if at.IsZero() {
		return nil, apperr.BadRequest("appointmentTime is required")
	}
	at = at.UTC()
	if !at.After(s.now()) {
		return nil, apperr.BadRequest("appointment time must be in the future")
	}

	doctor, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := checkSlot(doctor.Schedules, at); err != nil {
		return nil, err
	}

	appt := &Appointment{
		UserID:          userID,
		DoctorID:        doctorID,
		AppointmentTime: at,
		Status:          StatusScheduled,
		Notes:           notes,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		return s.appts.Create(ctx, appt)
	})
	if errors.Is(err, ErrSlotTaken) {
		return nil, apperr.Wrap(err, apperr.KindConflict, msgSlotTaken)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("book appointment: %w", err))
	}

	booked, err := s.appts.GetByID(ctx, appt.ID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("book appointment: reload: %w", err))
	}

	s.logger.Info().
		Str("appointment_id", booked.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("appointment_time", at).
		Msg("appointment booked")
	s.notify(ctx, booked, s.notifier.AppointmentBooked)
	return booked, nil
}

// checkSlot requires at to start a slot of one of the rules for its weekday.
func checkSlot(rules []ScheduleRule, at time.Time) error {
	offset := at.Sub(midnight(at))
	inHours := false
	for _, r := range rules {
		if r.DayOfWeek != at.Weekday() || !r.covers(offset) {
			continue
		}
		inHours = true
		if r.aligned(offset) {
			return nil
		}
	}
	if inHours {
		return apperr.BadRequest(msgNotAligned)
	}
	return apperr.BadRequest(msgOutsideHours)
}

// CancelAppointment cancels one of the user's upcoming appointments.
func (s *Service) CancelAppointment(ctx context.Context, userID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("cancel appointment: %w", err))
	}
	if appt.UserID != userID {
		return nil, apperr.Forbidden("you can only cancel your own appointments")
	}

	switch appt.Status {
	case StatusCancelled:
		return nil, apperr.BadRequest("appointment is already cancelled")
	case StatusCompleted:
		return nil, apperr.BadRequest("completed appointments cannot be cancelled")
	}
	if !appt.AppointmentTime.After(s.now()) {
		return nil, apperr.BadRequest("past appointments cannot be cancelled")
	}

	var cancelled *Appointment
	err = s.tx(ctx, func(ctx context.Context) error {
		ok, err := s.appts.Cancel(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("appointment is no longer scheduled")
		}
		cancelled, err = s.appts.GetByID(ctx, appointmentID)
		return err
	})
	if apperr.Is(err, apperr.KindBadRequest) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("cancel appointment: %w", err))
	}

	s.logger.Info().Str("appointment_id", appointmentID.String()).Msg("appointment cancelled")
	s.notify(ctx, cancelled, s.notifier.AppointmentCancelled)
	return cancelled, nil
}

// GetUserAppointments pages through the user's appointments, earliest first.
func (s *Service) GetUserAppointments(ctx context.Context, userID uuid.UUID, f AppointmentFilter) (*pagination.Response, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.BadRequest("status must be one of SCHEDULED, COMPLETED, CANCELLED")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.BadRequest("from must be before to")
	}
	p := pagination.New(f.Limit, f.Offset)
	f.Limit, f.Offset = p.Limit, p.Offset

	appts, total, err := s.appts.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list appointments: %w", err))
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return pagination.NewResponse(appts, total, p), nil
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) getDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("doctor not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get doctor: %w", err))
	}
	return d, nil
}

// notify sends in the background on a context that outlives the request.
func (s *Service) notify(ctx context.Context, a *Appointment, send func(context.Context, notification.AppointmentEvent) error) {
	ev := notification.AppointmentEvent{
		AppointmentID:  a.ID.String(),
		UserID:         a.UserID.String(),
		DoctorName:     a.DoctorName,
		Specialization: a.Specialization,
		Time:           a.AppointmentTime,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := send(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", ev.AppointmentID).Msg("appointment notification failed")
		}
	}()
}
