// Package syntax parses and normalizes an email address into a username
// and domain, without performing any I/O.
package syntax

import (
	"net/mail"
	"strings"
)

// Result is the syntax sub-result of a verification output.
type Result struct {
	Address       *string `json:"address"`
	Username      string  `json:"username"`
	Domain        string  `json:"domain"`
	IsValidSyntax bool    `json:"is_valid_syntax"`
}

// Check parses raw under RFC 5322's addr-spec grammar and requires at
// least one dot in the domain part. On any failure it returns a zero
// Result with IsValidSyntax false — the gate that forces downstream
// probes to be skipped (see internal/orchestrator).
func Check(raw string) Result {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return Result{}
	}

	at := strings.LastIndex(addr.Address, "@")
	if at < 1 || at == len(addr.Address)-1 {
		return Result{}
	}
	username := addr.Address[:at]
	domain := addr.Address[at+1:]

	if !strings.Contains(domain, ".") {
		return Result{}
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return Result{}
	}

	normalized := addr.Address
	return Result{
		Address:       &normalized,
		Username:      username,
		Domain:        strings.ToLower(domain),
		IsValidSyntax: true,
	}
}
