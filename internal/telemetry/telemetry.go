// Package telemetry defines the fire-and-forget event sink spec §7
// describes at the interface level: a place to send verification
// outcomes and error classifications without coupling the rest of the
// module to any particular collector. Concrete vendor SDKs are out of
// scope (spec names telemetry as an external collaborator, not a
// component to implement), so this package ships only the interface
// and a no-op default, plus the noise filter spec §7 requires of any
// sink that is wired in.
package telemetry

import (
	"context"

	"github.com/reacherhq/rch/internal/errclass"
)

// Event is one thing worth telling a collector about.
type Event struct {
	Address     string
	IsReachable string
	Class       errclass.Class
	Err         error
}

// Sink receives events. Implementations must not block the caller for
// long nor propagate errors back into the verification path (spec §7
// "telemetry failures never affect a verification result").
type Sink interface {
	Send(ctx context.Context, ev Event)
}

// NoOp discards every event. It is the default Sink until an operator
// wires a real collector.
type NoOp struct{}

func (NoOp) Send(context.Context, Event) {}

// Filtered wraps another Sink and drops events classified as noise
// (spec §7 "don't flood the collector with greylist chatter"),
// forwarding everything else unchanged.
type Filtered struct {
	Next Sink
}

func (f Filtered) Send(ctx context.Context, ev Event) {
	if errclass.IsNoise(ev.Class) {
		return
	}
	f.Next.Send(ctx, ev)
}
