package httpapi

import (
	"strings"
	"testing"
	"time"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

var cookieEpoch = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestCodec(test *testing.T, now func() time.Time) *StateCookieCodec {
	test.Helper()
	codec, err := NewStateCookieCodec([]byte("test-signing-key"), time.Hour, now)
	if err != nil {
		test.Fatalf("codec init: %v", err)
	}
	return codec
}

func TestStateCookieRoundTrip(test *testing.T) {
	test.Parallel()
	codec := newTestCodec(test, func() time.Time { return cookieEpoch })

	snapshot := postit.Snapshot{
		UserID:         "user-1",
		Day:            "2025-03-10",
		PostCountToday: 2,
		Coins:          7,
		IssuedUnixUTC:  cookieEpoch.Unix(),
	}
	encoded, err := codec.Encode(snapshot)
	if err != nil {
		test.Fatalf("encode: %v", err)
	}

	decoded := codec.Decode(encoded, "user-1")
	if decoded == nil {
		test.Fatalf("expected a decoded snapshot")
	}
	if decoded.Coins != 7 || decoded.PostCountToday != 2 || decoded.Day != "2025-03-10" {
		test.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestStateCookieRejectsTampering(test *testing.T) {
	test.Parallel()
	codec := newTestCodec(test, func() time.Time { return cookieEpoch })

	encoded, err := codec.Encode(postit.Snapshot{UserID: "user-1", Coins: 5})
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	parts := strings.Split(encoded, ".")
	if len(parts) != 3 {
		test.Fatalf("expected a three-part token")
	}
	tampered := parts[0] + "." + parts[1] + "." + "forgedsignature"
	if codec.Decode(tampered, "user-1") != nil {
		test.Fatalf("tampered cookie must decode to nil")
	}
}

func TestStateCookieRejectsWrongUser(test *testing.T) {
	test.Parallel()
	codec := newTestCodec(test, func() time.Time { return cookieEpoch })

	encoded, err := codec.Encode(postit.Snapshot{UserID: "user-1", Coins: 5})
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	if codec.Decode(encoded, "user-2") != nil {
		test.Fatalf("cookie for another user must decode to nil")
	}
}

func TestStateCookieRejectsExpiredToken(test *testing.T) {
	test.Parallel()
	moment := cookieEpoch
	codec := newTestCodec(test, func() time.Time { return moment })

	encoded, err := codec.Encode(postit.Snapshot{UserID: "user-1"})
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	moment = cookieEpoch.Add(2 * time.Hour)
	if codec.Decode(encoded, "user-1") != nil {
		test.Fatalf("expired cookie must decode to nil")
	}
}

func TestStateCookieRejectsGarbage(test *testing.T) {
	test.Parallel()
	codec := newTestCodec(test, nil)
	if codec.Decode("not-a-token", "user-1") != nil {
		test.Fatalf("garbage cookie must decode to nil")
	}
	if codec.Decode("", "user-1") != nil {
		test.Fatalf("empty cookie must decode to nil")
	}
}

func TestNewStateCookieCodecRequiresKey(test *testing.T) {
	test.Parallel()
	if _, err := NewStateCookieCodec(nil, time.Hour, nil); err == nil {
		test.Fatalf("expected an error without a signing key")
	}
}
