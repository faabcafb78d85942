package telemetry_test

import (
	"context"
	"testing"

	"github.com/reacherhq/rch/internal/errclass"
	"github.com/reacherhq/rch/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []telemetry.Event
}

func (r *recordingSink) Send(_ context.Context, ev telemetry.Event) {
	r.events = append(r.events, ev)
}

func TestFiltered_DropsNoise(t *testing.T) {
	rec := &recordingSink{}
	f := telemetry.Filtered{Next: rec}

	f.Send(context.Background(), telemetry.Event{Class: errclass.TransientGreylist})
	assert.Empty(t, rec.events)
}

func TestFiltered_ForwardsSignal(t *testing.T) {
	rec := &recordingSink{}
	f := telemetry.Filtered{Next: rec}

	f.Send(context.Background(), telemetry.Event{Class: errclass.PermanentMailbox, Address: "a@b.com"})
	assert.Len(t, rec.events, 1)
	assert.Equal(t, "a@b.com", rec.events[0].Address)
}

func TestNoOp_DoesNothing(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.NoOp{}.Send(context.Background(), telemetry.Event{})
	})
}
