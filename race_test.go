package corplink

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recoverHandler struct {
	recovered atomic.Int32
}

func (h *recoverHandler) HandlePanic() {
	if r := recover(); r != nil {
		h.recovered.Add(1)
	}
}

func TestRace_FirstWins(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errDead := errors.New("dead")

	var cancelled atomic.Int32

	winner, err := Race(context.Background(), nil,
		Branch{Name: "slow", Run: func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Add(1)
			return ctx.Err()
		}},
		Branch{Name: "fast", Run: func(ctx context.Context) error {
			return errDead
		}},
		Branch{Name: "slower", Run: func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Add(1)
			return ctx.Err()
		}},
	)

	require.Equal(t, "fast", winner)
	require.ErrorIs(t, err, errDead)

	// The losers were cancelled and awaited.
	require.Equal(t, int32(2), cancelled.Load())
}

func TestRace_ParentCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	winner, err := Race(ctx, nil,
		Branch{Name: "signal", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
		Branch{Name: "watchdog", Run: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return ctx.Err()
		}},
	)

	require.Equal(t, "signal", winner)
	require.NoError(t, err)
}

func TestRace_Panic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handler := &recoverHandler{}

	winner, err := Race(context.Background(), handler,
		Branch{Name: "keepalive", Run: func(ctx context.Context) error {
			panic("boom")
		}},
		Branch{Name: "signal", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
	)

	require.Equal(t, "keepalive", winner)
	require.ErrorIs(t, err, ErrBranchPanicked)
	require.Equal(t, int32(1), handler.recovered.Load())
}
