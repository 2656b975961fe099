package cron

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParser_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every hour", "0 * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"weekday business hours", "0 9-17 * * 1-5"},
		{"daily 2:30am", "30 2 * * *"},
		{"yearly Jan 1", "0 0 1 1 *"},
		{"every minute", "* * * * *"},
		{"specific day", "0 12 15 * *"},
		{"hashed minute", "H * * * *"},
		{"hashed range and step", "H(0-29)/10 H(8-17) * * 1-5"},
		{"descriptor", "@daily"},
		{"surrounding whitespace", "  0 10 * * *  "},
	}

	p := NewParser(time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := p.Parse(tt.expr, 1, Hash{}, "UTC")
			if err != nil {
				t.Errorf("Parse(%q, UTC) returned error: %v", tt.expr, err)
			}
			if tab == nil {
				t.Errorf("Parse(%q, UTC) returned nil tab", tt.expr)
			}
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"four fields", "* * * *"},
		{"six fields", "* * * * * *"},
		{"invalid minute 60", "60 * * * *"},
		{"invalid hour 25", "0 25 * * *"},
		{"non-numeric", "abc * * * *"},
		{"empty", ""},
		{"every descriptor", "@every 1h"},
		{"hash without range", "H(5) * * * *"},
		{"hash range out of bounds", "H(50-70) * * * *"},
		{"inverted hash range", "H(10-5) * * * *"},
		{"zero hash step", "H/0 * * * *"},
		{"bare timezone", "TZ=Asia/Tokyo"},
		{"inline timezone", "CRON_TZ=Asia/Tokyo 0 10 * * *"},
	}

	p := NewParser(time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.expr, 3, Hash{}, "UTC")
			if err == nil {
				t.Fatalf("Parse(%q, UTC) should return error for invalid expression", tt.expr)
			}
			if !errors.Is(err, ErrMalformedSchedule) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedSchedule", tt.expr, err)
			}
		})
	}
}

func TestParser_HashErrorNamesField(t *testing.T) {
	p := NewParser(time.UTC)
	_, err := p.Parse("0 H(20-30) * * *", 4, Hash{}, "UTC")
	if err == nil {
		t.Fatal("Parse should reject an hour hash range past 23")
	}
	want := "hash range 20-30 out of bounds for hour field (0-23)"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err, want)
	}
	if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error = %q, want the line number", err)
	}
}

func TestParser_TimezoneHandling(t *testing.T) {
	zones := []string{
		"UTC",
		"America/New_York",
		"Europe/Paris",
		"Asia/Tokyo",
		"Australia/Sydney",
		"Pacific/Auckland",
	}

	p := NewParser(time.UTC)
	for _, tz := range zones {
		t.Run(tz, func(t *testing.T) {
			tab, err := p.Parse("0 * * * *", 1, Hash{}, tz)
			if err != nil {
				t.Fatalf("Parse with timezone %q returned error: %v", tz, err)
			}
			if tab.Location().String() != tz {
				t.Errorf("Location() = %q, want %q", tab.Location(), tz)
			}
		})
	}
}

func TestParser_DefaultTimezone(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")
	p := NewParser(berlin)

	tab, err := p.Parse("0 * * * *", 1, Hash{}, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tab.Location() != berlin {
		t.Errorf("Location() = %v, want Europe/Berlin", tab.Location())
	}
}

func TestParser_InvalidTimezone(t *testing.T) {
	tests := []struct {
		name string
		tz   string
	}{
		{"nonexistent", "Invalid/Zone"},
		{"abbreviation", "NOPE"},
	}

	p := NewParser(time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse("0 * * * *", 1, Hash{}, tt.tz)
			if err == nil {
				t.Errorf("Parse with timezone %q should return error", tt.tz)
			}
		})
	}
}

func TestParser_CeilingCalculation(t *testing.T) {
	p := NewParser(time.UTC)

	// "0 10 * * *" = daily at 10:00
	tab, err := p.Parse("0 10 * * *", 1, Hash{}, "UTC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before occurrence", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"exactly on occurrence", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"inside matching minute", time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)},
		{"past matching minute", time.Date(2024, 1, 15, 10, 1, 0, 0, time.UTC), time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)},
		{"after occurrence", time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tab.Ceiling(tt.at)
			if !ok {
				t.Fatalf("Ceiling(%v) found no occurrence", tt.at)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Ceiling(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestParser_CeilingHourlyInLocalZone(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")
	p := NewParser(berlin)

	tab, err := p.Parse("10 * * * *", 1, Hash{}, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := []struct {
		at   time.Time
		want time.Time
	}{
		{time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 1, 1, 1, 10, 0, 0, berlin)},
		{time.Date(2018, 1, 1, 0, 10, 0, 0, time.UTC), time.Date(2018, 1, 1, 1, 10, 0, 0, berlin)},
		{time.Date(2018, 1, 1, 0, 20, 0, 0, time.UTC), time.Date(2018, 1, 1, 2, 10, 0, 0, berlin)},
	}
	for _, tt := range tests {
		got, ok := tab.Ceiling(tt.at)
		if !ok || !got.Equal(tt.want) {
			t.Errorf("Ceiling(%v) = %v, want %v", tt.at, got.In(berlin), tt.want)
		}
	}
}

func TestParser_FloorCalculation(t *testing.T) {
	p := NewParser(time.UTC)

	tests := []struct {
		name string
		expr string
		at   time.Time
		want time.Time
	}{
		{"same day", "0 10 * * *", time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"exactly on occurrence", "0 10 * * *", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"inside matching minute", "0 10 * * *", time.Date(2024, 1, 15, 10, 0, 45, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 45, 0, time.UTC)},
		{"seconds after matching minute", "0 10 * * *", time.Date(2024, 1, 15, 10, 1, 45, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"previous day", "0 10 * * *", time.Date(2024, 1, 15, 9, 59, 0, 0, time.UTC), time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC)},
		{"hourly across midnight", "10 * * * *", time.Date(2018, 1, 1, 0, 9, 59, 0, time.UTC), time.Date(2017, 12, 31, 23, 10, 0, 0, time.UTC)},
		{"yearly", "0 0 1 1 *", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"weekdays only", "30 2 * * 1-5", time.Date(2018, 1, 7, 12, 0, 0, 0, time.UTC), time.Date(2018, 1, 5, 2, 30, 0, 0, time.UTC)},
		{"day of month or weekday", "0 0 13 * 5", time.Date(2018, 4, 12, 12, 0, 0, 0, time.UTC), time.Date(2018, 4, 6, 0, 0, 0, 0, time.UTC)},
		{"leap day", "0 0 29 2 *", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2016, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := p.Parse(tt.expr, 1, Hash{}, "UTC")
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			got, ok := tab.Floor(tt.at)
			if !ok {
				t.Fatalf("Floor(%v) found no occurrence", tt.at)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Floor(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestParser_NeverOccurs(t *testing.T) {
	p := NewParser(time.UTC)

	// February 30th does not exist
	tab, err := p.Parse("0 0 30 2 *", 1, Hash{}, "UTC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	at := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	if got, ok := tab.Ceiling(at); ok {
		t.Errorf("Ceiling() = %v, want no occurrence", got)
	}
	if got, ok := tab.Floor(at); ok {
		t.Errorf("Floor() = %v, want no occurrence", got)
	}
}

func TestParser_CeilingCalculation_Timezone(t *testing.T) {
	p := NewParser(time.UTC)

	// "0 10 * * *" at 10:00 local should produce different UTC times
	tabNY, err := p.Parse("0 10 * * *", 1, Hash{}, "America/New_York")
	if err != nil {
		t.Fatalf("Parse NY failed: %v", err)
	}

	tabTokyo, err := p.Parse("0 10 * * *", 1, Hash{}, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("Parse Tokyo failed: %v", err)
	}

	// Use a reference time well before 10:00 in both zones
	ref := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	nextNY, _ := tabNY.Ceiling(ref)
	nextTokyo, _ := tabTokyo.Ceiling(ref)

	// Tokyo 10:00 JST = 01:00 UTC, NY 10:00 EDT = 14:00 UTC
	if !nextTokyo.Equal(time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("Tokyo ceiling = %v, want 01:00 UTC", nextTokyo.UTC())
	}
	if !nextNY.Equal(time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("NY ceiling = %v, want 14:00 UTC", nextNY.UTC())
	}

	// results keep the caller's location
	if nextNY.Location() != time.UTC {
		t.Errorf("Ceiling() location = %v, want UTC", nextNY.Location())
	}
}

func TestParser_DSTSpringForward(t *testing.T) {
	p := NewParser(time.UTC)

	// March 10 2024: US clocks spring forward from 2:00 AM to 3:00 AM EST→EDT
	// Schedule at 2:30 AM: this time doesn't exist on this date
	tab, err := p.Parse("30 2 * * *", 1, Hash{}, "America/New_York")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ny := mustLoadLocation("America/New_York")
	before := time.Date(2024, 3, 10, 1, 0, 0, 0, ny)
	next, ok := tab.Ceiling(before)
	if !ok {
		t.Fatal("Ceiling() found no occurrence")
	}

	march10_230 := time.Date(2024, 3, 10, 2, 30, 0, 0, ny)
	if next.Equal(march10_230) {
		t.Error("should not schedule at 2:30 AM on DST spring-forward day (time doesn't exist)")
	}
	if !next.After(before) {
		t.Errorf("Ceiling() should be after reference time, got %v", next)
	}
}

func TestParser_DSTFallBack(t *testing.T) {
	p := NewParser(time.UTC)

	// Nov 3 2024: US clocks fall back from 2:00 AM to 1:00 AM EDT→EST
	tab, err := p.Parse("30 1 * * *", 1, Hash{}, "America/New_York")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ny := mustLoadLocation("America/New_York")
	before := time.Date(2024, 11, 3, 0, 0, 0, 0, ny)
	next, _ := tab.Ceiling(before)
	local := next.In(ny)
	if local.Hour() != 1 || local.Minute() != 30 || local.Day() != 3 {
		t.Errorf("expected Nov 3 1:30 AM, got %v", local)
	}

	// Walking backwards from the next morning lands on the same day.
	prev, ok := tab.Floor(time.Date(2024, 11, 3, 9, 0, 0, 0, ny))
	if !ok {
		t.Fatal("Floor() found no occurrence")
	}
	local = prev.In(ny)
	if local.Day() != 3 || local.Hour() != 1 || local.Minute() != 30 {
		t.Errorf("expected Nov 3 1:30 AM, got %v", local)
	}
}

// floorWithin runs Floor with a deadline so a walk that stops moving fails
// the test instead of hanging it.
func floorWithin(t *testing.T, tab Evaluator, at time.Time) (time.Time, bool) {
	t.Helper()
	type result struct {
		t  time.Time
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		prev, ok := tab.Floor(at)
		done <- result{prev, ok}
	}()
	select {
	case r := <-done:
		return r.t, r.ok
	case <-time.After(5 * time.Second):
		t.Fatalf("Floor(%v) did not return", at)
		return time.Time{}, false
	}
}

func TestParser_DSTFallBack_EastOfUTC(t *testing.T) {
	p := NewParser(time.UTC)
	berlin := mustLoadLocation("Europe/Berlin")

	// Oct 28 2018: Berlin clocks fall back from 3:00 AM CEST to 2:00 AM CET,
	// so 2:00-2:59 happens twice.
	tests := []struct {
		name string
		line string
		from time.Time
		want time.Time
	}{
		{
			name: "across the repeated hour",
			line: "0 1 * * *",
			from: time.Date(2018, 10, 28, 4, 0, 0, 0, berlin),
			want: time.Date(2018, 10, 27, 23, 0, 0, 0, time.UTC), // 1:00 CEST
		},
		{
			name: "inside the repeated hour",
			line: "30 2 * * *",
			from: time.Date(2018, 10, 28, 4, 0, 0, 0, berlin),
			want: time.Date(2018, 10, 28, 1, 30, 0, 0, time.UTC), // 2:30 CET
		},
		{
			name: "from the second occurrence",
			line: "30 2 * * *",
			from: time.Date(2018, 10, 28, 1, 10, 0, 0, time.UTC), // 2:10 CET
			want: time.Date(2018, 10, 28, 0, 30, 0, 0, time.UTC), // 2:30 CEST
		},
		{
			name: "previous day",
			line: "0 12 * * *",
			from: time.Date(2018, 10, 28, 4, 0, 0, 0, berlin),
			want: time.Date(2018, 10, 27, 10, 0, 0, 0, time.UTC), // noon CEST
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := p.Parse(tt.line, 1, Hash{}, "Europe/Berlin")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			prev, ok := floorWithin(t, tab, tt.from)
			if !ok {
				t.Fatal("Floor() found no occurrence")
			}
			if !prev.Equal(tt.want) {
				t.Errorf("Floor() = %v, want %v", prev.UTC(), tt.want)
			}
		})
	}
}

func TestSplitParameters(t *testing.T) {
	expr, params := SplitParameters("0 * * * * % env=prod; region = eu ;;")
	if expr != "0 * * * * " {
		t.Errorf("expr = %q", expr)
	}
	if len(params) != 2 || params["env"] != "prod" || params["region"] != "eu" {
		t.Errorf("params = %v", params)
	}

	expr, params = SplitParameters("0 * * * *")
	if expr != "0 * * * *" || params != nil {
		t.Errorf("SplitParameters without %% = %q, %v", expr, params)
	}
}

func TestParser_ParseParameterized(t *testing.T) {
	p := NewParser(time.UTC)

	tab, err := p.ParseParameterized("0 3 * * * % env=prod", 2, Hash{}, "")
	if err != nil {
		t.Fatalf("ParseParameterized failed: %v", err)
	}
	if got := tab.Parameters()["env"]; got != "prod" {
		t.Errorf("Parameters()[env] = %q, want prod", got)
	}
	if tab.LineNumber() != 2 {
		t.Errorf("LineNumber() = %d, want 2", tab.LineNumber())
	}

	// callers cannot mutate the tab's parameters
	tab.Parameters()["env"] = "dev"
	if got := tab.Parameters()["env"]; got != "prod" {
		t.Errorf("Parameters() leaked internal map, got %q", got)
	}
}

func TestValidTimezone(t *testing.T) {
	if got := ValidTimezone(" Europe/Berlin "); got != "Europe/Berlin" {
		t.Errorf("ValidTimezone(Europe/Berlin) = %q", got)
	}
	if got := ValidTimezone("Nope/Zone"); got != "" {
		t.Errorf("ValidTimezone(Nope/Zone) = %q, want empty", got)
	}
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("mustLoadLocation: " + err.Error())
	}
	return loc
}
