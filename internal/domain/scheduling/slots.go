package scheduling

import (
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// midnight returns the start of t's UTC day.
func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExpandRule lists the slot start times of rule on day, stepping from Start
// by the slot length while the start is before End.
func ExpandRule(day time.Time, rule ScheduleRule) []time.Time {
	if rule.SlotMinutes <= 0 || rule.Start >= rule.End {
		return nil
	}
	base := midnight(day)
	step := rule.slotLength()
	out := make([]time.Time, 0, int((rule.End-rule.Start)/step)+1)
	for off := rule.Start; off < rule.End; off += step {
		out = append(out, base.Add(off))
	}
	return out
}

// AvailableSlots expands every rule for day, merges them in time order with
// duplicates collapsed, and drops slots that are booked or start before
// notBefore.
func AvailableSlots(day time.Time, rules []ScheduleRule, booked map[int64]struct{}, notBefore time.Time) []Slot {
	seen := make(map[int64]struct{})
	var starts []time.Time
	for _, r := range rules {
		if r.DayOfWeek != midnight(day).Weekday() {
			continue
		}
		for _, t := range ExpandRule(day, r) {
			key := t.Unix()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, taken := booked[key]; taken {
				continue
			}
			if !notBefore.IsZero() && !t.After(notBefore) {
				continue
			}
			starts = append(starts, t)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	slots := make([]Slot, len(starts))
	for i, t := range starts {
		slots[i] = Slot{Time: t.Format("15:04"), DateTime: t}
	}
	return slots
}

// bookedSet indexes appointment times by Unix second.
func bookedSet(appts []*Appointment) map[int64]struct{} {
	set := make(map[int64]struct{}, len(appts))
	for _, a := range appts {
		set[a.AppointmentTime.Unix()] = struct{}{}
	}
	return set
}
