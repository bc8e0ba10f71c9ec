package scheduling

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const fullDay = 24 * time.Hour

// RuleError lists every problem found in a set of schedule rules.
type RuleError struct {
	Problems []string
}

func (e *RuleError) Error() string {
	return "invalid schedule rules: " + strings.Join(e.Problems, "; ")
}

// ValidateScheduleRules checks each rule on its own and rejects overlapping
// windows for the same doctor on the same weekday. Storage does not enforce
// overlap, so every writer of schedules goes through this.
func ValidateScheduleRules(rules []ScheduleRule) error {
	var problems []string

	type key struct {
		doctor uuid.UUID
		day    time.Weekday
	}
	byDay := make(map[key][]ScheduleRule)

	for _, r := range rules {
		switch {
		case r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday:
			problems = append(problems, fmt.Sprintf("day of week %d out of range", r.DayOfWeek))
			continue
		case r.Start < 0 || r.End > fullDay:
			problems = append(problems, fmt.Sprintf("%s: times must lie within one day", r))
			continue
		case r.Start >= r.End:
			problems = append(problems, fmt.Sprintf("%s: start must be before end", r))
			continue
		case r.SlotMinutes <= 0:
			problems = append(problems, fmt.Sprintf("%s: slot duration must be positive", r))
			continue
		}
		k := key{r.DoctorID, r.DayOfWeek}
		byDay[k] = append(byDay[k], r)
	}

	for _, rs := range byDay {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
		for i := 1; i < len(rs); i++ {
			if rs[i].Start < rs[i-1].End {
				problems = append(problems, fmt.Sprintf("%s overlaps %s", rs[i], rs[i-1]))
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &RuleError{Problems: problems}
	}
	return nil
}
