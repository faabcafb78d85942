// Package smtpprobe performs a live SMTP conversation against a mail
// exchanger to decide whether it would accept mail for a given
// address, optionally tunneled through a SOCKS5 proxy. It is the
// liveness leg of the verification pipeline (C4 in the design docs);
// it never sends DATA and never authenticates.
package smtpprobe

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/reacherhq/rch/internal/errclass"
)

// ProxyConfig describes a SOCKS5 proxy to tunnel the SMTP connection
// through, mirroring the request-level `proxy` field of spec §3.
type ProxyConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Input carries the parameters of one probe attempt against one MX host.
type Input struct {
	ToEmail   string
	FromEmail string
	HelloName string
	Port      int
	Timeout   time.Duration
	Proxy     *ProxyConfig // nil means direct connection
}

// Result is the smtp sub-result of a verification output.
type Result struct {
	CanConnectSMTP bool `json:"can_connect_smtp"`
	IsDeliverable  bool `json:"is_deliverable"`
	IsCatchAll     bool `json:"is_catch_all"`
	HasFullInbox   bool `json:"has_full_inbox"`
	IsDisabled     bool `json:"is_disabled"`
}

// Outcome wraps a Result with the error classification that produced
// it, so the orchestrator's retry policy can read the error class
// without re-parsing the last SMTP reply line.
type Outcome struct {
	Result Result
	// Class is always set when Err is non-nil. When Err is nil it is
	// PermanentMailbox for a 5xx mailbox-unknown reply to the real RCPT,
	// and the zero value ("") otherwise.
	Class errclass.Class
	Err   error
}

// conclusive reports whether this outcome terminates the MX host loop
// (spec §4.4: "the first host that returns either is_deliverable=true
// or a permanent negative for the real recipient terminates the host
// loop"). A 5xx full-inbox or disabled reply counts as a permanent
// negative.
func (o Outcome) conclusive() bool {
	if o.Err != nil {
		return false
	}
	return o.Result.IsDeliverable || o.Class == errclass.PermanentMailbox ||
		o.Result.HasFullInbox || o.Result.IsDisabled
}

// ProbeHosts tries each MX host in order, stopping at the first host
// that yields a conclusive result. If every host fails transiently,
// the last outcome is returned.
func ProbeHosts(ctx context.Context, hosts []string, in Input) Outcome {
	var last Outcome
	for _, host := range hosts {
		out := probeOne(ctx, host, in)
		last = out
		if out.conclusive() {
			return out
		}
	}
	return last
}

func probeOne(ctx context.Context, host string, in Input) Outcome {
	conn, err := dial(ctx, host, in)
	if err != nil {
		return Outcome{Err: err, Class: errclass.IO}
	}
	defer conn.Close()

	deadline := time.Now().Add(in.Timeout)
	conn.SetDeadline(deadline)
	r := bufio.NewReader(conn)

	result := Result{}

	// 220 banner.
	banner, err := readReply(r)
	if err != nil {
		return Outcome{Err: err, Class: errclass.IO}
	}
	if code(banner) != 220 {
		return Outcome{Err: fmt.Errorf("unexpected banner: %s", banner), Class: errclass.IO}
	}
	result.CanConnectSMTP = true

	// EHLO, falling back to HELO on 5xx.
	if err := writeLine(conn, "EHLO "+in.HelloName); err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}
	ehloReply, err := readMultiline(r)
	if err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}
	if code(ehloReply) >= 500 {
		if err := writeLine(conn, "HELO "+in.HelloName); err != nil {
			return Outcome{Result: result, Err: err, Class: errclass.IO}
		}
		heloReply, err := readReply(r)
		if err != nil {
			return Outcome{Result: result, Err: err, Class: errclass.IO}
		}
		if code(heloReply) != 250 {
			return Outcome{Result: result, Class: errclass.ClassifyLine(heloReply), Err: classifyErr(heloReply)}
		}
	}

	// MAIL FROM.
	if err := writeLine(conn, fmt.Sprintf("MAIL FROM:<%s>", in.FromEmail)); err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}
	mailReply, err := readReply(r)
	if err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}
	if code(mailReply) != 250 {
		return classifyNonConclusive(result, mailReply)
	}

	// RCPT TO for the real recipient.
	if err := writeLine(conn, fmt.Sprintf("RCPT TO:<%s>", in.ToEmail)); err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}
	rcptReply, err := readReply(r)
	if err != nil {
		return Outcome{Result: result, Err: err, Class: errclass.IO}
	}

	rcptCode := code(rcptReply)
	switch {
	case rcptCode == 250:
		result.IsDeliverable = true
	case rcptCode >= 500:
		if errclass.IsMailboxUnknown(rcptReply) {
			result.IsDeliverable = false
		} else if errclass.IsFullInbox(rcptReply) {
			result.HasFullInbox = true
		} else if errclass.IsDisabled(rcptReply) {
			result.IsDisabled = true
		}
	default:
		// 4xx or unexpected: quit and report the classified non-conclusive outcome.
		writeLine(conn, "QUIT")
		readReply(r)
		return classifyNonConclusive(result, rcptReply)
	}

	// Catch-all probe: a second RCPT TO with a fresh random local part,
	// on the same connection (spec §4.4 step 6).
	if toDomain := domainOf(in.ToEmail); toDomain != "" {
		probe := fmt.Sprintf("%s@%s", randomLocalPart(), toDomain)
		if err := writeLine(conn, fmt.Sprintf("RCPT TO:<%s>", probe)); err == nil {
			if probeReply, err := readReply(r); err == nil && code(probeReply) == 250 {
				result.IsCatchAll = true
			}
		}
	}

	writeLine(conn, "QUIT")
	readReply(r)

	// A permanent mailbox-unknown rejection for the real RCPT is
	// conclusive (spec: "invalid — ... SMTP says not deliverable with
	// a permanent negative"); everything else computed above is
	// already conclusive by construction (deliverable, full, disabled).
	class := errclass.Class("")
	if rcptCode >= 500 && errclass.IsMailboxUnknown(rcptReply) {
		class = errclass.PermanentMailbox
	}
	return Outcome{Result: result, Class: class}
}

// classifyNonConclusive builds an Outcome from a non-250 reply that
// isn't a straightforward permanent mailbox rejection — greylist,
// blacklist, or an uncategorized 4xx/5xx.
func classifyNonConclusive(result Result, reply string) Outcome {
	class := errclass.ClassifyLine(reply)
	return Outcome{Result: result, Class: class, Err: classifyErr(reply)}
}

func classifyErr(reply string) error {
	return fmt.Errorf("smtp: %s", strings.TrimSpace(reply))
}

func dial(ctx context.Context, host string, in Input) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(in.Port))

	type result struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		if in.Proxy == nil {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, "tcp", addr)
			resultCh <- result{conn, err}
			return
		}

		var auth *proxy.Auth
		if in.Proxy.Username != "" {
			auth = &proxy.Auth{User: in.Proxy.Username, Password: in.Proxy.Password}
		}
		proxyAddr := net.JoinHostPort(in.Proxy.Host, strconv.Itoa(in.Proxy.Port))
		dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, proxy.Direct)
		if err != nil {
			resultCh <- result{nil, fmt.Errorf("socks5 dialer: %w", err)}
			return
		}
		conn, err := dialer.Dial("tcp", addr)
		resultCh <- result{conn, err}
	}()

	select {
	case res := <-resultCh:
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeLine(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// readReply reads a single SMTP reply line.
func readReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

// readMultiline reads a possibly multi-line SMTP reply ("250-..." continuation
// lines followed by a final "250 ..." line), returning the full text.
func readMultiline(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(line)
		if len(line) >= 4 && line[3] == ' ' {
			break
		}
	}
	return sb.String(), nil
}

func code(reply string) int {
	if len(reply) < 3 {
		return 0
	}
	c, err := strconv.Atoi(reply[:3])
	if err != nil {
		return 0
	}
	return c
}

func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomLocalPart() string {
	const length = 20
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomCharset))))
		if err != nil {
			b[i] = randomCharset[0]
			continue
		}
		b[i] = randomCharset[n.Int64()]
	}
	return string(b)
}
