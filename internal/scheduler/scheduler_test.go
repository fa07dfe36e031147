package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

func TestParseJobValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  types.JobConfig
		ok   bool
	}{
		{"clock job", types.JobConfig{Name: "a", Times: []string{"08:30"}, Weekdays: []string{"mon", "fri"}}, true},
		{"interval job", types.JobConfig{Name: "b", Every: time.Minute}, true},
		{"missing name", types.JobConfig{Times: []string{"08:30"}}, false},
		{"neither mode", types.JobConfig{Name: "c"}, false},
		{"both modes", types.JobConfig{Name: "d", Times: []string{"08:30"}, Every: time.Minute}, false},
		{"bad time", types.JobConfig{Name: "e", Times: []string{"25:00"}}, false},
		{"bad weekday", types.JobConfig{Name: "f", Times: []string{"08:30"}, Weekdays: []string{"monday"}}, false},
	}
	for _, tc := range cases {
		_, err := parseJob(tc.cfg)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestJobNextClockTimes(t *testing.T) {
	loc := time.UTC
	j, err := parseJob(types.JobConfig{
		Name:     "session",
		Times:    []string{"08:00", "13:30"},
		Weekdays: []string{"mon", "tue", "wed", "thu", "fri"},
	})
	if err != nil {
		t.Fatalf("parseJob: %v", err)
	}

	// 2024-01-05 is a Friday.
	cases := []struct {
		now, want string
	}{
		{"2024-01-05T07:00:00Z", "2024-01-05T08:00:00Z"}, // before first slot
		{"2024-01-05T08:00:00Z", "2024-01-05T13:30:00Z"}, // exactly on a slot: strictly after
		{"2024-01-05T12:00:00Z", "2024-01-05T13:30:00Z"}, // between slots
		{"2024-01-05T14:00:00Z", "2024-01-08T08:00:00Z"}, // Friday evening rolls to Monday
		{"2024-01-06T10:00:00Z", "2024-01-08T08:00:00Z"}, // Saturday skipped entirely
	}
	for _, tc := range cases {
		now, _ := time.Parse(time.RFC3339, tc.now)
		want, _ := time.Parse(time.RFC3339, tc.want)
		if got := j.next(now, loc); !got.Equal(want) {
			t.Errorf("next(%s) = %s, want %s", tc.now, got, want)
		}
	}
}

func TestJobNextInterval(t *testing.T) {
	j, err := parseJob(types.JobConfig{Name: "tick", Every: 10 * time.Minute})
	if err != nil {
		t.Fatalf("parseJob: %v", err)
	}
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	if got := j.next(now, time.UTC); !got.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("next = %s", got)
	}
}

func TestSchedulerFiresIntervalJob(t *testing.T) {
	var runs atomic.Int64
	s, err := New(zap.NewNop(), types.SchedulerConfig{
		Jobs: []types.JobConfig{{Name: "tick", Every: 10 * time.Millisecond}},
	}, "UTC", func(ctx context.Context, name string) {
		if name != "tick" {
			t.Errorf("job name = %q", name)
		}
		runs.Add(1)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start()
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if runs.Load() < 2 {
		t.Errorf("job fired %d times, want at least 2", runs.Load())
	}

	status := s.Status()
	if len(status) != 1 || status[0].Name != "tick" {
		t.Fatalf("status = %+v", status)
	}
	if status[0].Runs != runs.Load() {
		t.Errorf("status runs = %d, counter = %d", status[0].Runs, runs.Load())
	}
	if status[0].LastRun.IsZero() {
		t.Error("last run not recorded")
	}
}

func TestSchedulerRejectsUnknownTimezone(t *testing.T) {
	_, err := New(zap.NewNop(), types.SchedulerConfig{}, "Mars/Olympus", func(context.Context, string) {})
	if err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s, err := New(zap.NewNop(), types.SchedulerConfig{
		Jobs: []types.JobConfig{{Name: "tick", Every: time.Hour}},
	}, "UTC", func(context.Context, string) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()
	s.Stop()
}
