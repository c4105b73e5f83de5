package lockperiod

import (
	"errors"
	"testing"
	"time"
)

func TestParse_Default(t *testing.T) {
	m, err := Parse(DefaultIntermediate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := m.Lookup(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Duration != 4*7*24*time.Hour {
		t.Errorf("expected 4 weeks, got %v", p.Duration)
	}
	if p.BonusX10000 != 11500 {
		t.Errorf("expected bonus 11500, got %d", p.BonusX10000)
	}
	if got := m.String(); got != DefaultIntermediate {
		t.Errorf("round trip mismatch: %s", got)
	}
}

func TestParse_SortsPeriods(t *testing.T) {
	m, err := Parse("8w:13000, 2w:10000 ,4w:11500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ps := m.Periods()
	for i := 1; i < len(ps); i++ {
		if ps[i].Weeks <= ps[i-1].Weeks {
			t.Errorf("periods not ascending: %v", ps)
		}
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"2w",
		"2:10000",
		"0w:10000",
		"2w:9999",
		"2w:10000,2w:11000",
		"2d:10000",
	}
	for _, text := range tests {
		if _, err := Parse(text); err == nil {
			t.Errorf("expected error for menu %q", text)
		}
	}
}

func TestParse_BonusMustNotDecrease(t *testing.T) {
	_, err := Parse("2w:12000,4w:11000")
	if !errors.Is(err, ErrBonusDecrease) {
		t.Errorf("expected ErrBonusDecrease, got %v", err)
	}
}

func TestLookup_Invalid(t *testing.T) {
	m := MustParse(DefaultIntermediate)
	if _, err := m.Lookup(1); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod for 1 week, got %v", err)
	}
	if m.Valid(3) {
		t.Error("3 weeks should not be valid")
	}
	if !m.Valid(12) {
		t.Error("12 weeks should be valid")
	}
}
