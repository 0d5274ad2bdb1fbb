package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Trigger is a weekly wall-clock trigger.
type Trigger struct {
	DayOfWeek time.Weekday
	Hour      int
	Minute    int
}

// Spec renders the trigger as a five-field cron expression.
func (t Trigger) Spec() string {
	return fmt.Sprintf("%d %d * * %d", t.Minute, t.Hour, int(t.DayOfWeek))
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s %02d:%02d", strings.ToLower(t.DayOfWeek.String()[:3]), t.Hour, t.Minute)
}

// Validate checks field ranges.
func (t Trigger) Validate() error {
	if t.DayOfWeek < time.Sunday || t.DayOfWeek > time.Saturday {
		return fmt.Errorf("invalid day of week: %d", t.DayOfWeek)
	}
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("invalid hour: %d", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("invalid minute: %d", t.Minute)
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseTrigger normalises a trigger expression to a cron spec. It accepts the
// short "mon 09:00" form, descriptors such as "@weekly", and five-field cron
// expressions.
func ParseTrigger(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty trigger")
	}

	fields := strings.Fields(expr)
	if len(fields) == 2 && !strings.HasPrefix(fields[0], "@") {
		t, err := parseShortTrigger(fields[0], fields[1])
		if err != nil {
			return "", err
		}
		return t.Spec(), nil
	}

	if _, err := specParser.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid cron expression: %w", err)
	}
	return expr, nil
}

func parseShortTrigger(day, clock string) (Trigger, error) {
	wd, ok := weekdays[strings.ToLower(day)]
	if !ok {
		return Trigger{}, fmt.Errorf("invalid day of week %q", day)
	}

	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return Trigger{}, fmt.Errorf("invalid time %q, want HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid minute %q", parts[1])
	}

	t := Trigger{DayOfWeek: wd, Hour: hour, Minute: minute}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// NextAfter returns the first trigger time strictly after t, evaluated in loc.
func NextAfter(spec string, t time.Time, loc *time.Location) (time.Time, error) {
	normalized, err := ParseTrigger(spec)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := specParser.Parse(normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	if loc != nil {
		t = t.In(loc)
	}
	return sched.Next(t), nil
}
