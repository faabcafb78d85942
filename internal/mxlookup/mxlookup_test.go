package mxlookup

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_OrdersRecords(t *testing.T) {
	fn := func(ctx context.Context, domain string) ([]*net.MX, error) {
		return []*net.MX{
			{Host: "mx1.example.com.", Pref: 10},
			{Host: "mx2.example.com.", Pref: 20},
		}, nil
	}
	r, err := lookup(context.Background(), "example.com", fn)
	assert.NoError(t, err)
	assert.True(t, r.AcceptsMail)
	assert.Equal(t, []string{"mx1.example.com", "mx2.example.com"}, r.Records)
}

func TestLookup_NoRecords(t *testing.T) {
	fn := func(ctx context.Context, domain string) ([]*net.MX, error) {
		return nil, nil
	}
	r, err := lookup(context.Background(), "example.com", fn)
	assert.NoError(t, err)
	assert.False(t, r.AcceptsMail)
	assert.Empty(t, r.Records)
}

func TestLookup_NXDOMAIN(t *testing.T) {
	fn := func(ctx context.Context, domain string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
	}
	r, err := lookup(context.Background(), "nonexistent.invalid", fn)
	assert.NoError(t, err)
	assert.False(t, r.AcceptsMail)
}

func TestLookup_TransientError(t *testing.T) {
	fn := func(ctx context.Context, domain string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "timeout", IsTimeout: true}
	}
	_, err := lookup(context.Background(), "example.com", fn)
	assert.Error(t, err)
}

func TestLookup_NonDNSError(t *testing.T) {
	fn := func(ctx context.Context, domain string) ([]*net.MX, error) {
		return nil, errors.New("boom")
	}
	_, err := lookup(context.Background(), "example.com", fn)
	assert.Error(t, err)
}
