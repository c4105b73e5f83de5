// Package lockperiod handles the locking-period menu offered to depositors:
// parsing, validation, and lookup of lock durations and bonus multipliers.
package lockperiod

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Week is the unit locking periods are expressed in.
const Week = 7 * 24 * time.Hour

// NoBonusX10000 is the multiplier of a period that earns no bonus.
const NoBonusX10000 = 10_000

// periodRegex matches one menu item: {weeks}w:{bonusX10000}
// Example: 4w:11500
var periodRegex = regexp.MustCompile(`^(\d+)w:(\d+)$`)

var (
	ErrInvalidMenu   = errors.New("lockperiod: invalid menu format")
	ErrInvalidPeriod = errors.New("lockperiod: invalid locking period")
	ErrBonusDecrease = errors.New("lockperiod: bonus must not decrease with longer locks")
)

// Period is one entry of the menu.
type Period struct {
	Weeks       uint32        `json:"weeks"`
	Duration    time.Duration `json:"duration"`
	BonusX10000 int64         `json:"bonus_x10000"`
}

// Menu is an immutable, ordered set of locking periods.
type Menu struct {
	periods []Period
	byWeeks map[uint32]int
}

// DefaultIntermediate is the menu used by two-sided pools unless configured.
const DefaultIntermediate = "2w:10000,4w:11500,8w:13000,12w:15000"

// DefaultDiscovery is the menu used by price discovery pools unless configured.
const DefaultDiscovery = "2w:10000,4w:11000,8w:12500"

// Parse parses a comma-separated menu string.
// Format: {weeks}w:{bonusX10000}[,{weeks}w:{bonusX10000}...]
func Parse(text string) (*Menu, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty menu", ErrInvalidMenu)
	}

	var periods []Period
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		matches := periodRegex.FindStringSubmatch(item)
		if matches == nil {
			return nil, fmt.Errorf("%w: %q (expected {weeks}w:{bonusX10000})", ErrInvalidMenu, item)
		}
		weeks, err := strconv.ParseUint(matches[1], 10, 32)
		if err != nil || weeks == 0 {
			return nil, fmt.Errorf("%w: weeks in %q", ErrInvalidMenu, item)
		}
		bonus, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil || bonus < NoBonusX10000 {
			return nil, fmt.Errorf("%w: bonus in %q must be at least %d", ErrInvalidMenu, item, NoBonusX10000)
		}
		periods = append(periods, Period{
			Weeks:       uint32(weeks),
			Duration:    time.Duration(weeks) * Week,
			BonusX10000: bonus,
		})
	}
	return New(periods)
}

// MustParse is Parse for package-level defaults; it panics on error.
func MustParse(text string) *Menu {
	m, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return m
}

// New builds a menu from explicit periods. Periods are sorted by weeks;
// duplicate weeks and bonuses that shrink for longer locks are rejected.
func New(periods []Period) (*Menu, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: no periods", ErrInvalidMenu)
	}
	sorted := append([]Period(nil), periods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weeks < sorted[j].Weeks })

	m := &Menu{periods: sorted, byWeeks: make(map[uint32]int, len(sorted))}
	for i, p := range sorted {
		if _, dup := m.byWeeks[p.Weeks]; dup {
			return nil, fmt.Errorf("%w: duplicate %dw", ErrInvalidMenu, p.Weeks)
		}
		if i > 0 && p.BonusX10000 < sorted[i-1].BonusX10000 {
			return nil, fmt.Errorf("%w: %dw", ErrBonusDecrease, p.Weeks)
		}
		if p.Duration == 0 {
			sorted[i].Duration = time.Duration(p.Weeks) * Week
		}
		m.byWeeks[p.Weeks] = i
	}
	return m, nil
}

// Lookup returns the period for the given number of weeks.
func (m *Menu) Lookup(weeks uint32) (Period, error) {
	i, ok := m.byWeeks[weeks]
	if !ok {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidPeriod, weeks)
	}
	return m.periods[i], nil
}

// Valid reports whether weeks is on the menu.
func (m *Menu) Valid(weeks uint32) bool {
	_, ok := m.byWeeks[weeks]
	return ok
}

// Periods returns a copy of the menu in ascending order.
func (m *Menu) Periods() []Period {
	return append([]Period(nil), m.periods...)
}

// String renders the menu in Parse format.
func (m *Menu) String() string {
	parts := make([]string, len(m.periods))
	for i, p := range m.periods {
		parts[i] = fmt.Sprintf("%dw:%d", p.Weeks, p.BonusX10000)
	}
	return strings.Join(parts, ",")
}
