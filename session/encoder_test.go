package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleSession() *Session {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Session{
		AccountID:      "acc-1",
		IP:             "203.0.113.7",
		UserAgent:      "Mozilla/5.0",
		DeviceName:     "laptop",
		Country:        "DE",
		RememberMe:     true,
		Active:         true,
		Timeout:        30 * time.Minute,
		CreatedAt:      now,
		LastActivityAt: now.Add(time.Minute),
		ExpiresAt:      now.Add(31 * time.Minute),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSession()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != sessionFormatVersionCurrent {
		t.Fatalf("version byte = %d", data[0])
	}
	if got := string(data[2 : 2+int(data[1])]); got != in.AccountID {
		t.Fatalf("account id header = %q", got)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":         nil,
		"wrong version": append([]byte{9}, data[1:]...),
		"truncated":     data[:len(data)-3],
		"trailing":      append(append([]byte(nil), data...), 0),
	}
	for name, in := range cases {
		if _, err := Decode(in); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	s := sampleSession()
	s.DeviceName = strings.Repeat("d", 256)
	if _, err := Encode(s); err == nil {
		t.Fatal("expected error for oversized device name")
	}
}
