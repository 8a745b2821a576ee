package store

import (
	"database/sql"
	"encoding/hex"
	"testing"
	"time"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"sourcing.completed"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestNullableScanHelpers(t *testing.T) {
	if v := timePtr(sql.NullTime{}); v != nil {
		t.Fatalf("invalid time -> nil expected")
	}
	now := time.Now()
	if v := timePtr(sql.NullTime{Time: now, Valid: true}); v == nil || !v.Equal(now) {
		t.Fatalf("valid time -> %v expected, got %v", now, v)
	}
	if v := floatPtr(sql.NullFloat64{}); v != nil {
		t.Fatalf("invalid float -> nil expected")
	}
	if v := floatPtr(sql.NullFloat64{Float64: 42, Valid: true}); v == nil || *v != 42 {
		t.Fatalf("valid float -> 42 expected")
	}
	if nullIfEmpty("") != nil {
		t.Fatalf("empty string -> nil expected")
	}
}

func TestAuditDescription(t *testing.T) {
	got := AuditDescription(3, 2)
	if got != "3 open orders were found. 2 decisions were made." {
		t.Fatalf("unexpected description %q", got)
	}
}
