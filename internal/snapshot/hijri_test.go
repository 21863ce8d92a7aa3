package snapshot

import (
	"testing"
	"time"
)

func TestHijriKnownDates(t *testing.T) {
	tests := []struct {
		name      string
		gregorian string
		wantYear  int
		wantMonth int
		wantDay   int
	}{
		// Epoch of the civil calendar.
		{"Epoch", "0622-07-19", 1, 1, 1},
		// 1 Ramadan 1445 was announced for 11 March 2024.
		{"Ramadan 1445", "2024-03-11", 1445, 9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := time.Parse("2006-01-02", tt.gregorian)
			if err != nil {
				t.Fatal(err)
			}
			info := hijriInfo(g)
			if info.Year != tt.wantYear || info.Month != tt.wantMonth || info.Day != tt.wantDay {
				t.Fatalf("hijri(%s) = %d-%02d-%02d, want %d-%02d-%02d",
					tt.gregorian, info.Year, info.Month, info.Day,
					tt.wantYear, tt.wantMonth, tt.wantDay)
			}
			if info.MonthName == "" {
				t.Fatal("month name missing")
			}
		})
	}
}

func TestGregorianInfoWeekday(t *testing.T) {
	// 2026-02-08 is a Sunday → DB convention 7.
	g, _ := time.Parse("2006-01-02", "2026-02-08")
	info := gregorianInfo(g)
	if info.Weekday != 7 {
		t.Fatalf("weekday = %d, want 7", info.Weekday)
	}
	if info.WeekdayDisplay != "الأحد" {
		t.Fatalf("weekday_display = %q", info.WeekdayDisplay)
	}
}
