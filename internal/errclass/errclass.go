// Package errclass centralizes the substring tables used to classify
// SMTP error lines and I/O failures into a small taxonomy. The tables
// are data, not code, so that adding a new blacklist phrase never
// touches the retry policy in internal/orchestrator.
package errclass

import "strings"

// Class is the error taxonomy consulted by the retry policy (which
// transport to rotate to) and by the telemetry filter (which errors
// are too noisy to report).
type Class string

const (
	PermanentBlacklist Class = "permanent_blacklist"
	PermanentMailbox   Class = "permanent_mailbox"
	TransientGreylist  Class = "transient_greylist"
	TransientBlacklist Class = "transient_blacklist"
	IO                 Class = "io"
	Uncategorized      Class = "uncategorized"
)

// mailboxUnknownPhrases indicate a permanent, mailbox-does-not-exist
// rejection (spec §4.4's "5xx containing substrings like...").
var mailboxUnknownPhrases = []string{
	"user unknown",
	"no such user",
	"does not exist",
	"unknown recipient",
	"not exist",
	"invalid recipient",
	"mailbox unavailable",
	"recipient rejected",
	"account that you tried to reach",
}

// blacklistPhrases indicate the verifier's own IP/hostname is
// blacklisted or otherwise distrusted by the remote server (spec
// §4.5's transport rotation trigger).
var blacklistPhrases = []string{
	"spamhaus",
	"blocked",
	"blacklist",
	"banned",
	"reverse hostname",
	"relay denied",
	"not yet authorized",
	"access denied",
	"poor reputation",
	"rbl",
	"dnsbl",
	"barracuda",
	"spamcop",
}

// greylistPhrases indicate a temporary, server-side greylisting
// rejection that a same-transport retry is likely to resolve.
var greylistPhrases = []string{
	"greylist",
	"greylisted",
	"graylist",
	"try again later",
	"temporarily deferred",
	"please try again",
}

// fullInboxPhrases and disabledPhrases feed internal/smtpprobe's
// HasFullInbox / IsDisabled flags directly; they are not part of the
// retry-rotation decision but share this package's data-driven style.
var fullInboxPhrases = []string{"full", "over quota", "quota exceeded", "insufficient storage"}
var disabledPhrases = []string{"disabled", "suspended", "deactivated", "locked"}

// ClassifyLine classifies a lowercase-folded SMTP reply line (or a
// synthetic line describing an I/O failure) into a Class.
func ClassifyLine(line string) Class {
	lower := strings.ToLower(line)

	if containsAny(lower, blacklistPhrases) {
		if containsAny(lower, greylistPhrases) {
			return TransientBlacklist
		}
		return PermanentBlacklist
	}
	if containsAny(lower, mailboxUnknownPhrases) {
		return PermanentMailbox
	}
	if containsAny(lower, greylistPhrases) {
		return TransientGreylist
	}
	return Uncategorized
}

// ClassifyIOError classifies a non-SMTP-line failure (dial timeout,
// connection reset, TLS handshake failure, context deadline) as IO.
func ClassifyIOError(_ error) Class {
	return IO
}

// IsFullInbox reports whether line indicates a full mailbox / over-quota condition.
func IsFullInbox(line string) bool {
	return containsAny(strings.ToLower(line), fullInboxPhrases)
}

// IsDisabled reports whether line indicates a disabled/suspended mailbox.
func IsDisabled(line string) bool {
	return containsAny(strings.ToLower(line), disabledPhrases)
}

// IsMailboxUnknown reports whether line indicates the mailbox does not exist.
func IsMailboxUnknown(line string) bool {
	return containsAny(strings.ToLower(line), mailboxUnknownPhrases)
}

// IsBlacklisted reports whether line indicates the sender's own
// IP/hostname is distrusted by the remote server — the signal the
// orchestrator uses to rotate transport on retry.
func IsBlacklisted(line string) bool {
	return containsAny(strings.ToLower(line), blacklistPhrases)
}

// IsNoise reports whether class should be withheld from the telemetry
// sink as expected/noisy (spec §7's telemetry filter): blacklist
// listings and greylisting are known, high-volume, non-actionable
// conditions.
func IsNoise(c Class) bool {
	switch c {
	case PermanentBlacklist, TransientBlacklist, TransientGreylist:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether class should feed the retry loop rather
// than terminate the orchestration conclusively.
func IsRetryable(c Class) bool {
	switch c {
	case TransientGreylist, TransientBlacklist, IO, Uncategorized:
		return true
	default:
		return false
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
