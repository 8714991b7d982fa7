package geoip

import (
	"errors"
	"testing"
)

type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) CountryCode(ip string) (string, error) {
	f.calls = append(f.calls, ip)
	return "ID", nil
}

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("expected nil resolver without error, got %v, %v", r, err)
	}
	if Lookup(r) != nil {
		t.Fatalf("nil resolver should produce a nil lookup")
	}
}

func TestNewResolverMissingFile(t *testing.T) {
	if _, err := NewResolver(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatalf("expected error for a missing database")
	}
}

func TestLookupSkipsNonPublicAddresses(t *testing.T) {
	fake := &fakeResolver{}
	lookup := Lookup(fake)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "::1", "fe80::1", "garbage", ""} {
		country, err := lookup(ip)
		if err != nil || country != "" {
			t.Fatalf("%q: expected empty result, got %q, %v", ip, country, err)
		}
	}
	if len(fake.calls) != 0 {
		t.Fatalf("resolver should not be queried, got %v", fake.calls)
	}
	country, err := lookup(" 203.0.113.5 ")
	if err != nil || country != "ID" {
		t.Fatalf("unexpected public lookup result: %q, %v", country, err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "203.0.113.5" {
		t.Fatalf("unexpected resolver calls: %v", fake.calls)
	}
}

func TestNilResolverUnavailable(t *testing.T) {
	var r *Resolver
	if _, err := r.CountryCode("203.0.113.5"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}
