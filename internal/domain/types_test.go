package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"2020-01", Period{2020, time.January}, false},
		{"2009-12", Period{2009, time.December}, false},
		{"2020-13", Period{}, true},
		{"2020-1", Period{}, true},
		{"20-01", Period{}, true},
		{"abcd-01", Period{}, true},
		{"", Period{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePeriod(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePeriod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPeriodFromFilename(t *testing.T) {
	p, err := PeriodFromFilename("yellow_trip_2020-01.parquet")
	if err != nil {
		t.Fatalf("PeriodFromFilename: %v", err)
	}
	if p.Year != 2020 || p.Month != time.January {
		t.Errorf("got %v, want 2020-01", p)
	}

	p, err = PeriodFromFilename("pruned-yellow_tripdata_2010-02.parquet")
	if err != nil {
		t.Fatalf("PeriodFromFilename (pruned): %v", err)
	}
	if p.String() != "2010-02" {
		t.Errorf("got %v, want 2010-02", p)
	}

	for _, bad := range []string{"notes.txt", "file1.parquet", "yellow_tripdata_2020.parquet", ".DS_Store"} {
		if _, err := PeriodFromFilename(bad); err == nil {
			t.Errorf("PeriodFromFilename(%q) should fail", bad)
		}
	}
}

func TestPeriodBounds(t *testing.T) {
	p := Period{2021, time.December}
	if got := p.Start(); !got.Equal(time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", got)
	}
	if got := p.End(); !got.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", got)
	}
	if !p.Contains(time.Date(2021, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Error("last second of month should be contained")
	}
	if p.Contains(p.End()) {
		t.Error("End should be exclusive")
	}
	if p.Next() != (Period{2022, time.January}) {
		t.Errorf("Next = %v", p.Next())
	}
}

func TestExpectedPeriods(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	periods := ExpectedPeriods(2009, now)
	if len(periods) != 180 {
		t.Fatalf("len = %d, want 180", len(periods))
	}
	if periods[0] != (Period{2009, time.January}) {
		t.Errorf("first = %v", periods[0])
	}
	if periods[len(periods)-1] != (Period{2023, time.December}) {
		t.Errorf("last = %v", periods[len(periods)-1])
	}

	if got := ExpectedPeriods(2024, now); len(got) != 0 {
		t.Errorf("current month only: got %d periods, want 0", len(got))
	}
}

func TestTripRecordDerive(t *testing.T) {
	pickup := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TripRecord{
		PickupDatetime:  pickup,
		DropoffDatetime: pickup.Add(15 * time.Minute),
		TripDistance:    1.5,
	}
	r.Derive()
	if r.TripDuration != 900 {
		t.Errorf("TripDuration = %v, want 900", r.TripDuration)
	}

	r2 := TripRecord{
		PickupDatetime:  pickup.Add(10 * time.Minute),
		DropoffDatetime: pickup.Add(30 * time.Minute),
		TripDistance:    3,
	}
	r2.Derive()
	if r2.Speed != 9 {
		t.Errorf("Speed = %v, want 9", r2.Speed)
	}

	zero := TripRecord{PickupDatetime: pickup, DropoffDatetime: pickup, TripDistance: 2}
	zero.Derive()
	if !math.IsInf(zero.Speed, 1) {
		t.Errorf("zero-duration speed = %v, want +Inf", zero.Speed)
	}
}

func TestThresholdsAccept(t *testing.T) {
	th := Thresholds{
		LowestSpeed:          10,
		HighestSpeed:         100,
		ShortestTripDistance: 1,
		ShortestTripDuration: 300,
		LeastCost:            10,
	}
	period := Period{2010, time.February}
	base := TripRecord{
		PickupDatetime:  time.Date(2010, 2, 2, 10, 0, 0, 0, time.UTC),
		DropoffDatetime: time.Date(2010, 2, 2, 10, 30, 0, 0, time.UTC),
		TripDistance:    10,
		TotalAmount:     15,
	}
	base.Derive()
	if !th.Accept(base, period) {
		t.Fatal("base record should pass")
	}

	outside := base
	outside.PickupDatetime = time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC)
	outside.DropoffDatetime = outside.PickupDatetime.Add(30 * time.Minute)
	outside.Derive()

	cheap := base
	cheap.TotalAmount = 10

	instant := base
	instant.DropoffDatetime = instant.PickupDatetime
	instant.Derive()

	still := base
	still.TripDistance = 0
	still.DropoffDatetime = still.PickupDatetime
	still.Derive()

	for name, r := range map[string]TripRecord{
		"outside period": outside,
		"cost at bound":  cheap,
		"zero duration":  instant,
		"nan speed":      still,
	} {
		if th.Accept(r, period) {
			t.Errorf("%s: should be rejected", name)
		}
	}
}

func TestAnalysisType(t *testing.T) {
	for _, s := range []string{"monthly_average", "rolling_average"} {
		if _, err := ParseAnalysisType(s); err != nil {
			t.Errorf("ParseAnalysisType(%q): %v", s, err)
		}
	}
	if _, err := ParseAnalysisType("weekly_average"); err == nil {
		t.Error("unknown analysis type should fail")
	}
	if got := RollingAverage.Title(); got != "Rolling Average" {
		t.Errorf("Title = %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &StageError{Stage: "clean", Err: &NetworkError{Period: Period{2020, 1}, Attempts: 3, Err: cause}}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the root cause")
	}
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatal("errors.As should find NetworkError")
	}
	if ne.Attempts != 3 {
		t.Errorf("Attempts = %d", ne.Attempts)
	}

	status := &NetworkError{Period: Period{2018, 2}, StatusCode: 404}
	if got := status.Error(); got != fmt.Sprintf("downloading 2018-02: status code %d", 404) {
		t.Errorf("Error() = %q", got)
	}
}
