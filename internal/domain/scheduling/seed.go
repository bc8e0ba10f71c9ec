package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	seedSpecializations = []string{
		"Cardiology", "Dermatology", "Neurology", "Orthopedics", "Pediatrics",
		"Psychiatry", "Radiology", "Oncology", "Gastroenterology", "Urology",
	}
	seedHospitals = []string{
		"General Hospital", "City Central Hospital", "Metro Health Center", "Sunrise Clinic",
		"Lakeside Medical", "Heritage Hospital", "Silverline Care", "Northside Clinic",
		"Harmony Health", "Trinity Hospital",
	}
)

// Catalog is the reference data the seed command loads.
type Catalog struct {
	Specializations []Specialization
	Hospitals       []Hospital
	Doctors         []Doctor
}

// Rules returns every schedule rule in the catalog.
func (c Catalog) Rules() []ScheduleRule {
	var rules []ScheduleRule
	for _, d := range c.Doctors {
		rules = append(rules, d.Schedules...)
	}
	return rules
}

// DefaultCatalog builds a deterministic catalog of n doctors working
// weekdays 09:00-17:00 in 30 minute slots.
func DefaultCatalog(n int) Catalog {
	var c Catalog
	for _, name := range seedSpecializations {
		c.Specializations = append(c.Specializations, Specialization{
			ID:          uuid.New(),
			Name:        name,
			Description: name + " related medical care",
		})
	}
	for i, name := range seedHospitals {
		c.Hospitals = append(c.Hospitals, Hospital{
			ID:      uuid.New(),
			Name:    name,
			Address: fmt.Sprintf("%d Main Street, City %d", 100+i, i+1),
		})
	}

	for i := 0; i < n; i++ {
		spec := c.Specializations[i%len(c.Specializations)]
		d := Doctor{
			ID:               uuid.New(),
			Name:             fmt.Sprintf("Dr. Doctor%d", i),
			Qualifications:   fmt.Sprintf("MD, License #%04d", i),
			SpecializationID: &spec.ID,
			Hospitals:        []Hospital{c.Hospitals[i%len(c.Hospitals)]},
		}
		if i%3 == 0 {
			d.Hospitals = append(d.Hospitals, c.Hospitals[(i+3)%len(c.Hospitals)])
		}
		for day := time.Monday; day <= time.Friday; day++ {
			d.Schedules = append(d.Schedules, ScheduleRule{
				ID:          uuid.New(),
				DoctorID:    d.ID,
				DayOfWeek:   day,
				Start:       9 * time.Hour,
				End:         17 * time.Hour,
				SlotMinutes: 30,
			})
		}
		c.Doctors = append(c.Doctors, d)
	}
	return c
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Specializations int
	Hospitals       int
	Doctors         int
	Schedules       int
}

// Seed validates the catalog's schedules and writes everything in one
// transaction.
func Seed(ctx context.Context, w CatalogWriter, tx TxFunc, c Catalog) (SeedResult, error) {
	var res SeedResult
	if err := ValidateScheduleRules(c.Rules()); err != nil {
		return res, err
	}
	if tx == nil {
		tx = noTx
	}

	err := tx(ctx, func(ctx context.Context) error {
		for i := range c.Specializations {
			if err := w.CreateSpecialization(ctx, &c.Specializations[i]); err != nil {
				return err
			}
			res.Specializations++
		}
		for i := range c.Hospitals {
			if err := w.CreateHospital(ctx, &c.Hospitals[i]); err != nil {
				return err
			}
			res.Hospitals++
		}
		for i := range c.Doctors {
			d := &c.Doctors[i]
			if err := w.CreateDoctor(ctx, d); err != nil {
				return err
			}
			res.Doctors++
			for j := range d.Schedules {
				d.Schedules[j].DoctorID = d.ID
				if err := w.AddSchedule(ctx, &d.Schedules[j]); err != nil {
					return err
				}
				res.Schedules++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed catalog: %w", err)
	}
	return res, nil
}
