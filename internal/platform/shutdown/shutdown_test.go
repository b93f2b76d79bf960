package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDrainRunsEveryStep(t *testing.T) {
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Fn: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	err := Drain(time.Second,
		step("sessions", nil),
		step("bus", errors.New("redis gone")),
		Step{Name: "skipped"},
		step("otel", nil),
	)
	if got := strings.Join(order, ","); got != "sessions,bus,otel" {
		t.Fatalf("order got=%q", got)
	}
	if err == nil || !strings.Contains(err.Error(), "bus: redis gone") {
		t.Fatalf("err got=%v", err)
	}
}

func TestDrainSharesOneDeadline(t *testing.T) {
	var deadline time.Time
	err := Drain(50*time.Millisecond, Step{Name: "wait", Fn: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err got=%v", err)
	}
	if deadline.IsZero() {
		t.Fatalf("step context had no deadline")
	}
}
