package chrono

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"studienet-scraper/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	location, err := LoadLocation("")
	require.NoError(t, err)
	require.Equal(t, time.Local, location)

	location, err = LoadLocation("Europe/Copenhagen")
	require.NoError(t, err)
	require.Equal(t, "Europe/Copenhagen", location.String())

	_, err = LoadLocation("Europe/Horsens")
	require.Error(t, err)
}

func TestScheduleInvalid(t *testing.T) {
	s := NewScheduler(telemetry.NewRecorderAPI(), time.UTC)
	require.Error(t, s.Schedule("every morning", func(ctx context.Context) {}))
	require.NoError(t, s.Schedule("0 7 * * *", func(ctx context.Context) {}))
	require.NoError(t, s.Schedule("@every 6h", func(ctx context.Context) {}))
}

func TestRun(t *testing.T) {
	s := NewScheduler(telemetry.NewRecorderAPI(), time.UTC)

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	err := s.Schedule("@every 1s", func(context.Context) {
		runs.Add(1)
		cancel()
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.Equal(t, int32(1), runs.Load())
}
