// Package orchestrator composes the syntax, MX, misc, and SMTP checks
// into a single verification output, applying the retry/transport-race
// policy described in spec §4.5. It is modeled as an explicit,
// bounded state machine (spec §9: "a racing state machine, not
// recursion") rather than recursive futures, to keep the cancellation
// contract and the retry-cycle bound explicit.
package orchestrator

import (
	"context"
	"time"

	"github.com/reacherhq/rch/internal/errclass"
	"github.com/reacherhq/rch/internal/misc"
	"github.com/reacherhq/rch/internal/mxlookup"
	"github.com/reacherhq/rch/internal/smtpprobe"
	"github.com/reacherhq/rch/internal/syntax"
)

// Reachability is the four-valued verdict of spec §3.
type Reachability string

const (
	Safe    Reachability = "safe"
	Risky   Reachability = "risky"
	Invalid Reachability = "invalid"
	Unknown Reachability = "unknown"
)

// maxRetryCycles is N in spec §4.5: up to 2 retry cycles, 3 total attempts.
const maxRetryCycles = 2

const (
	defaultFromEmail = "user@example.org"
	defaultHelloName = "gmail.com"
	defaultSMTPPort  = 25
	defaultTimeout   = 10 * time.Second
)

// Input is one address check request (spec §3 "Address input").
type Input struct {
	ToEmail     string
	FromEmail   string
	HelloName   string
	Proxy       *smtpprobe.ProxyConfig
	SMTPPort    int
	SMTPTimeout time.Duration
}

// withDefaults fills in the request defaults named in spec §3.
func (in Input) withDefaults() Input {
	if in.FromEmail == "" {
		in.FromEmail = defaultFromEmail
	}
	if in.HelloName == "" {
		in.HelloName = defaultHelloName
	}
	if in.SMTPPort == 0 {
		in.SMTPPort = defaultSMTPPort
	}
	if in.SMTPTimeout == 0 {
		in.SMTPTimeout = defaultTimeout
	}
	return in
}

// Output is the full verification output of spec §3/§6.
type Output struct {
	Input       string           `json:"input"`
	IsReachable Reachability     `json:"is_reachable"`
	Syntax      syntax.Result    `json:"syntax"`
	MX          mxlookup.Result  `json:"mx"`
	Misc        misc.Result      `json:"misc"`
	SMTP        smtpprobe.Result `json:"smtp"`
}

// transport identifies one leg of the direct/proxy race.
type transport int

const (
	transportDirect transport = iota
	transportProxy
)

// Run executes the full verification pipeline for in, applying the
// retry/transport-rotation policy, and returns within
// (maxRetryCycles+1) * SMTPTimeout wall-clock regardless of server
// behavior (spec P4).
func Run(ctx context.Context, in Input) Output {
	in = in.withDefaults()

	out := Output{Input: in.ToEmail}

	// SYNTAX_CHECK: the gate. Invalid syntax short-circuits everything
	// else to their zero "not attempted" values (spec §4.1, P1).
	out.Syntax = syntax.Check(in.ToEmail)
	if !out.Syntax.IsValidSyntax {
		out.IsReachable = Invalid
		out.MX = mxlookup.Result{Records: []string{}}
		return out
	}

	overallDeadline := time.Now().Add(time.Duration(maxRetryCycles+1) * in.SMTPTimeout)
	overallCtx, cancel := context.WithDeadline(ctx, overallDeadline)
	defer cancel()

	out.Misc = misc.Check(out.Syntax.Username, out.Syntax.Domain)

	mxResult, mxErr := mxlookup.Lookup(overallCtx, out.Syntax.Domain)
	out.MX = mxResult
	if mxErr != nil {
		out.IsReachable = Unknown
		return out
	}
	if !out.MX.AcceptsMail {
		out.IsReachable = Invalid
		return out
	}

	smtpOutcome, hitDeadline := race(overallCtx, out.MX.Records, in)
	out.SMTP = smtpOutcome.Result

	// An outcome that still carries an error after the last cycle
	// (greylisting, blacklisting, I/O failure) was never conclusive.
	if hitDeadline || smtpOutcome.Err != nil {
		out.IsReachable = Unknown
		return out
	}

	out.IsReachable = Derive(out)
	return out
}

// Derive computes the final verdict as a pure function of the four
// sub-results (spec §3, P5): same four sub-results always yield the
// same verdict, independent of how they were produced.
func Derive(out Output) Reachability {
	if !out.Syntax.IsValidSyntax {
		return Invalid
	}
	if !out.MX.AcceptsMail {
		return Invalid
	}
	if !out.SMTP.IsDeliverable {
		// Either a clean permanent rejection (classified by the probe)
		// or we never got a conclusive SMTP answer at all.
		if out.SMTP.CanConnectSMTP {
			return Invalid
		}
		return Unknown
	}
	if out.SMTP.IsCatchAll || out.SMTP.HasFullInbox || out.SMTP.IsDisabled || out.Misc.IsRoleAccount {
		return Risky
	}
	return Safe
}

// race runs up to maxRetryCycles+1 attempts, each racing the
// available transports (direct, and proxy if configured) concurrently;
// the first conclusive result wins and cancels the rest. It returns
// the last collected outcome and whether the overall deadline tripped
// before a conclusive result was reached.
func race(ctx context.Context, hosts []string, in Input) (smtpprobe.Outcome, bool) {
	transports := []transport{transportDirect}
	if in.Proxy != nil {
		transports = append(transports, transportProxy)
	}

	preferred := transportDirect
	var last smtpprobe.Outcome

	for cycle := 0; cycle <= maxRetryCycles; cycle++ {
		select {
		case <-ctx.Done():
			return last, true
		default:
		}

		ordered := orderByPreference(transports, preferred)
		out, deadlineHit := runCycle(ctx, hosts, in, ordered)
		last = out

		if deadlineHit {
			return last, true
		}
		if conclusiveVerdict(out) {
			return last, false
		}

		if out.Err != nil && errclass.IsBlacklisted(out.Err.Error()) {
			preferred = opposite(preferred)
		}
	}

	return last, false
}

// runCycle races the given transports (in order, concurrently) for
// one attempt and returns the first conclusive outcome, or the last
// one collected if none are conclusive.
func runCycle(ctx context.Context, hosts []string, in Input, transports []transport) (smtpprobe.Outcome, bool) {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type legResult struct {
		outcome smtpprobe.Outcome
	}
	results := make(chan legResult, len(transports))

	for _, tr := range transports {
		leg := buildInput(in, tr)
		go func(leg smtpprobe.Input) {
			out := smtpprobe.ProbeHosts(cycleCtx, hosts, leg)
			select {
			case results <- legResult{out}:
			case <-cycleCtx.Done():
			}
		}(leg)
	}

	var last smtpprobe.Outcome
	for i := 0; i < len(transports); i++ {
		select {
		case r := <-results:
			last = r.outcome
			if conclusiveVerdict(r.outcome) {
				cancel()
				return r.outcome, false
			}
		case <-ctx.Done():
			return last, true
		}
	}
	return last, false
}

func buildInput(in Input, tr transport) smtpprobe.Input {
	si := smtpprobe.Input{
		ToEmail:   in.ToEmail,
		FromEmail: in.FromEmail,
		HelloName: in.HelloName,
		Port:      in.SMTPPort,
		Timeout:   in.SMTPTimeout,
	}
	if tr == transportProxy {
		si.Proxy = in.Proxy
	}
	return si
}

// conclusiveVerdict mirrors smtpprobe.Outcome.conclusive's spec-level
// notion for the orchestrator: a result is conclusive iff it yields
// is_reachable in {safe, risky, invalid} (spec §4.5).
func conclusiveVerdict(o smtpprobe.Outcome) bool {
	if o.Err != nil {
		return false
	}
	if o.Result.IsDeliverable {
		return true
	}
	if o.Result.CanConnectSMTP && (o.Class == errclass.PermanentMailbox || o.Result.HasFullInbox || o.Result.IsDisabled) {
		return true
	}
	return false
}

func orderByPreference(transports []transport, preferred transport) []transport {
	ordered := make([]transport, len(transports))
	copy(ordered, transports)
	for i, t := range ordered {
		if t == preferred {
			ordered[0], ordered[i] = ordered[i], ordered[0]
			break
		}
	}
	return ordered
}

func opposite(t transport) transport {
	if t == transportDirect {
		return transportProxy
	}
	return transportDirect
}
