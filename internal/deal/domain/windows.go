package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidityWindow is a recurring weekly slot during which a deal's vouchers
// may be redeemed. Times are wall-clock in the business time zone. An End
// before Start spans midnight.
type ValidityWindow struct {
	Days  []string `json:"days,omitempty"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Windows decodes the deal's validity windows. No windows means always valid.
func (d Deal) Windows() ([]ValidityWindow, error) {
	raw := strings.TrimSpace(string(d.ValidityWindows))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var windows []ValidityWindow
	if err := json.Unmarshal([]byte(raw), &windows); err != nil {
		return nil, fmt.Errorf("decode validity windows: %w", err)
	}
	for _, w := range windows {
		if err := w.validate(); err != nil {
			return nil, err
		}
	}
	return windows, nil
}

// RedeemableAt reports whether t falls inside any window, evaluated in loc.
func RedeemableAt(windows []ValidityWindow, t time.Time, loc *time.Location) bool {
	if len(windows) == 0 {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		if w.contains(local.Weekday(), minute) {
			return true
		}
	}
	return false
}

func (w ValidityWindow) contains(day time.Weekday, minute int) bool {
	start, _ := parseClock(w.Start)
	end, _ := parseClock(w.End)

	if start <= end {
		return w.appliesOn(day) && minute >= start && minute < end
	}
	// Overnight slot: the evening part belongs to the listed day and the
	// early-morning part to the following day.
	if minute >= start {
		return w.appliesOn(day)
	}
	if minute < end {
		return w.appliesOn((day + 6) % 7)
	}
	return false
}

func (w ValidityWindow) appliesOn(day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, d := range w.Days {
		if wd, ok := parseDay(d); ok && wd == day {
			return true
		}
	}
	return false
}

func (w ValidityWindow) validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return err
	}
	if _, err := parseClock(w.End); err != nil {
		return err
	}
	for _, d := range w.Days {
		if _, ok := parseDay(d); !ok {
			return fmt.Errorf("invalid validity window day %q", d)
		}
	}
	return nil
}

// parseDay accepts "mon", "Monday" and similar spellings.
func parseDay(value string) (time.Weekday, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if len(value) < 3 {
		return 0, false
	}
	wd, ok := weekdays[value[:3]]
	return wd, ok
}

func parseClock(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid validity window time %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}
