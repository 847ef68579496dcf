package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRoomID(t *testing.T) {
	now := time.Unix(1737171717, 0)

	id := GenerateRoomID("transfer", now)
	if !strings.HasPrefix(id, "transfer_") {
		t.Fatalf("expected transfer prefix, got %q", id)
	}
	if !strings.HasSuffix(id, "_1737171717") {
		t.Fatalf("expected timestamp suffix, got %q", id)
	}

	parts := strings.Split(id, "_")
	if len(parts) != 3 || len(parts[1]) != 8 {
		t.Fatalf("expected prefix_8hex_ts shape, got %q", id)
	}

	if GenerateRoomID("", now) == "" || !strings.HasPrefix(GenerateRoomID("", now), "room_") {
		t.Fatalf("expected room prefix default")
	}

	if GenerateRoomID("call", now) == GenerateRoomID("call", now) {
		t.Fatalf("expected unique ids")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "0s"},
		{-5, "0s"},
		{59, "59s"},
		{65, "1m 5s"},
		{3599, "59m 59s"},
		{3700, "1h 1m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
