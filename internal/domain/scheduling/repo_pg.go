package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthassist/healthassist/internal/platform/db"
)

// appointmentSlotIndex is the partial unique index that guards live bookings.
const appointmentSlotIndex = "uq_appointments_doctor_time"

// -- Doctor Repository --

// DoctorRepoPG reads doctors and writes the catalog.
type DoctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) *DoctorRepoPG {
	return &DoctorRepoPG{pool: pool}
}

const doctorCols = `d.id, d.name, COALESCE(d.qualifications, ''), d.specialization_id, s.name, s.description`

const doctorFilterSQL = `
	($1::uuid IS NULL OR d.id = $1)
	AND ($2::uuid IS NULL OR d.specialization_id = $2)
	AND ($3::uuid IS NULL OR EXISTS (
		SELECT 1 FROM doctor_hospitals dh WHERE dh.doctor_id = d.id AND dh.hospital_id = $3))`

func (r *DoctorRepoPG) FindScheduled(ctx context.Context, weekday time.Weekday, f DoctorFilter) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+doctorCols+`,
		       ds.id, ds.day_of_week, ds.start_time, ds.end_time, ds.slot_duration_minutes
		FROM doctors d
		JOIN doctor_schedules ds ON ds.doctor_id = d.id AND ds.day_of_week = $4
		LEFT JOIN specializations s ON s.id = d.specialization_id
		WHERE `+doctorFilterSQL+`
		ORDER BY d.name, d.id, ds.start_time`,
		f.DoctorID, f.SpecializationID, f.HospitalID, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("find scheduled doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*Doctor
	byID := make(map[uuid.UUID]*Doctor)
	for rows.Next() {
		var d Doctor
		var specName, specDesc *string
		var rule ScheduleRule
		var dow int16
		var start, end pgtype.Time
		if err := rows.Scan(&d.ID, &d.Name, &d.Qualifications, &d.SpecializationID, &specName, &specDesc,
			&rule.ID, &dow, &start, &end, &rule.SlotMinutes); err != nil {
			return nil, fmt.Errorf("scan scheduled doctor: %w", err)
		}
		rule.DoctorID = d.ID
		rule.DayOfWeek = time.Weekday(dow)
		rule.Start, rule.End = fromPGTime(start), fromPGTime(end)

		existing, ok := byID[d.ID]
		if !ok {
			d.Specialization = specialization(d.SpecializationID, specName, specDesc)
			existing = &d
			byID[d.ID] = existing
			doctors = append(doctors, existing)
		}
		existing.Schedules = append(existing.Schedules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find scheduled doctors: %w", err)
	}

	if err := r.loadHospitals(ctx, byID); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *DoctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	var specName, specDesc *string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors d
		LEFT JOIN specializations s ON s.id = d.specialization_id
		WHERE d.id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Qualifications, &d.SpecializationID, &specName, &specDesc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	d.Specialization = specialization(d.SpecializationID, specName, specDesc)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, day_of_week, start_time, end_time, slot_duration_minutes
		FROM doctor_schedules WHERE doctor_id = $1
		ORDER BY day_of_week, start_time`, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor schedules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rule := ScheduleRule{DoctorID: d.ID}
		var dow int16
		var start, end pgtype.Time
		if err := rows.Scan(&rule.ID, &dow, &start, &end, &rule.SlotMinutes); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		rule.DayOfWeek = time.Weekday(dow)
		rule.Start, rule.End = fromPGTime(start), fromPGTime(end)
		d.Schedules = append(d.Schedules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get doctor schedules: %w", err)
	}

	if err := r.loadHospitals(ctx, map[uuid.UUID]*Doctor{d.ID: &d}); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DoctorRepoPG) List(ctx context.Context, f DoctorFilter) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+doctorCols+`
		FROM doctors d
		LEFT JOIN specializations s ON s.id = d.specialization_id
		WHERE `+doctorFilterSQL+`
		ORDER BY d.name, d.id`,
		f.DoctorID, f.SpecializationID, f.HospitalID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*Doctor
	byID := make(map[uuid.UUID]*Doctor)
	for rows.Next() {
		d := &Doctor{}
		var specName, specDesc *string
		if err := rows.Scan(&d.ID, &d.Name, &d.Qualifications, &d.SpecializationID, &specName, &specDesc); err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		d.Specialization = specialization(d.SpecializationID, specName, specDesc)
		byID[d.ID] = d
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	if err := r.loadHospitals(ctx, byID); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *DoctorRepoPG) loadHospitals(ctx context.Context, byID map[uuid.UUID]*Doctor) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id, d := range byID {
		ids = append(ids, id.String())
		d.Hospitals = []Hospital{}
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT dh.doctor_id, h.id, h.name, COALESCE(h.address, '')
		FROM doctor_hospitals dh
		JOIN hospitals h ON h.id = dh.hospital_id
		WHERE dh.doctor_id = ANY($1::uuid[])
		ORDER BY h.name`, ids)
	if err != nil {
		return fmt.Errorf("load hospitals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doctorID uuid.UUID
		var h Hospital
		if err := rows.Scan(&doctorID, &h.ID, &h.Name, &h.Address); err != nil {
			return fmt.Errorf("scan hospital: %w", err)
		}
		if d, ok := byID[doctorID]; ok {
			d.Hospitals = append(d.Hospitals, h)
		}
	}
	return rows.Err()
}

func (r *DoctorRepoPG) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO hospitals (id, name, address) VALUES ($1, $2, NULLIF($3, ''))`, h.ID, h.Name, h.Address)
	if err != nil {
		return fmt.Errorf("insert hospital: %w", err)
	}
	return nil
}

func (r *DoctorRepoPG) CreateSpecialization(ctx context.Context, s *Specialization) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO specializations (id, name, description) VALUES ($1, $2, NULLIF($3, ''))`, s.ID, s.Name, s.Description)
	if err != nil {
		return fmt.Errorf("insert specialization: %w", err)
	}
	return nil
}

// CreateDoctor inserts the doctor and links it to d.Hospitals.
func (r *DoctorRepoPG) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `
		INSERT INTO doctors (id, name, qualifications, specialization_id)
		VALUES ($1, $2, NULLIF($3, ''), $4)`,
		d.ID, d.Name, d.Qualifications, d.SpecializationID); err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	for _, h := range d.Hospitals {
		if _, err := conn.Exec(ctx,
			`INSERT INTO doctor_hospitals (doctor_id, hospital_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			d.ID, h.ID); err != nil {
			return fmt.Errorf("link doctor hospital: %w", err)
		}
	}
	return nil
}

func (r *DoctorRepoPG) AddSchedule(ctx context.Context, rule *ScheduleRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time, slot_duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rule.ID, rule.DoctorID, int16(rule.DayOfWeek), toPGTime(rule.Start), toPGTime(rule.End), rule.SlotMinutes)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func specialization(id *uuid.UUID, name, desc *string) *Specialization {
	if id == nil || name == nil {
		return nil
	}
	s := &Specialization{ID: *id, Name: *name}
	if desc != nil {
		s.Description = *desc
	}
	return s
}

func fromPGTime(t pgtype.Time) time.Duration {
	return time.Duration(t.Microseconds) * time.Microsecond
}

func toPGTime(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: int64(d / time.Microsecond), Valid: true}
}

// -- Appointment Repository --

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentCols = `a.id, a.user_id, a.doctor_id, a.appointment_time, a.status, COALESCE(a.notes, ''),
	a.created_at, a.updated_at, d.name, COALESCE(s.name, '')`

const appointmentFrom = `
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	LEFT JOIN specializations s ON s.id = d.specialization_id`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, doctor_id, appointment_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.DoctorID, a.AppointmentTime.UTC(), string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok && constraint == appointmentSlotIndex {
		return ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+appointmentCols+appointmentFrom+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ListBooked(ctx context.Context, doctorIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	if len(doctorIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(doctorIDs))
	for i, id := range doctorIDs {
		ids[i] = id.String()
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, appointment_time, status
		FROM appointments
		WHERE doctor_id = ANY($1::uuid[])
		  AND status <> 'CANCELLED'
		  AND appointment_time >= $2 AND appointment_time < $3`,
		ids, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list booked: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a := &Appointment{}
		var status string
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.AppointmentTime, &status); err != nil {
			return nil, fmt.Errorf("scan booked: %w", err)
		}
		a.Status = AppointmentStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'`, id)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, f AppointmentFilter) ([]*Appointment, int, error) {
	where := []string{"a.user_id = $1"}
	args := []any{userID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, f.From.UTC())
		where = append(where, fmt.Sprintf("a.appointment_time >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, f.To.UTC())
		where = append(where, fmt.Sprintf("a.appointment_time < $%d", len(args)))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+appointmentCols+appointmentFrom+whereSQL+
		fmt.Sprintf(` ORDER BY a.appointment_time ASC, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.UserID, &a.DoctorID, &a.AppointmentTime, &status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt, &a.DoctorName, &a.Specialization); err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	a.AppointmentTime = a.AppointmentTime.UTC()
	return &a, nil
}
