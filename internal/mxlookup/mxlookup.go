// Package mxlookup resolves MX records for a domain with a bounded
// timeout, distinguishing "no mail exchanger" from a transient DNS
// failure.
package mxlookup

import (
	"context"
	"net"
	"strings"
)

// Result is the MX sub-result of a verification output.
type Result struct {
	AcceptsMail bool     `json:"accepts_mail"`
	Records     []string `json:"records"`
}

// lookupMXFunc abstracts net.Resolver.LookupMX for testing.
type lookupMXFunc func(ctx context.Context, domain string) ([]*net.MX, error)

// Lookup resolves MX records for domain, ordered by ascending
// preference (lowest preference first, matching net.LookupMX). A
// domain with no MX records (NXDOMAIN or empty answer) is not an
// error — it yields an empty Result with AcceptsMail=false. Any other
// resolver failure is returned as an error; internal/orchestrator turns
// it into an unknown verdict and neither classifies it through
// internal/errclass nor records it in the output.
func Lookup(ctx context.Context, domain string) (Result, error) {
	return lookup(ctx, domain, net.DefaultResolver.LookupMX)
}

func lookup(ctx context.Context, domain string, lookupMX lookupMXFunc) (Result, error) {
	mxs, err := lookupMX(ctx, domain)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && (dnsErr.IsNotFound || isNXDOMAIN(dnsErr)) {
			return Result{AcceptsMail: false, Records: []string{}}, nil
		}
		return Result{}, err
	}

	if len(mxs) == 0 {
		return Result{AcceptsMail: false, Records: []string{}}, nil
	}

	records := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		records = append(records, strings.TrimSuffix(mx.Host, "."))
	}

	return Result{AcceptsMail: true, Records: records}, nil
}

func isNXDOMAIN(err *net.DNSError) bool {
	return strings.Contains(strings.ToLower(err.Err), "no such host") ||
		strings.Contains(strings.ToLower(err.Err), "nxdomain")
}
