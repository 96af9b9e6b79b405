package token

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func testClaims() Claims {
	return Claims{
		RequestID:   "req-1",
		PlacementID: "plc-1",
		NetworkID:   3,
		NetworkName: "partner-a",
		CreativeID:  "cr-9",
		UserID:      "user-1",
		PublisherID: 7,
		PriceCPM:    2.5,
		Currency:    "USD",
	}
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	tok, err := Generate(testClaims(), secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := Verify(tok, secret, time.Hour)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := testClaims()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("claims = %+v, want %+v", got, want)
	}
}

func TestVerify_RejectsTampering(t *testing.T) {
	tok, err := Generate(testClaims(), secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := Verify(tampered, secret, time.Hour); err != ErrInvalid {
		t.Errorf("tampered payload: err = %v, want ErrInvalid", err)
	}

	if _, err := Verify(tok, []byte("wrong-secret"), time.Hour); err != ErrInvalid {
		t.Errorf("wrong secret: err = %v, want ErrInvalid", err)
	}

	if _, err := Verify("not-a-token", secret, time.Hour); err != ErrInvalid {
		t.Errorf("garbage: err = %v, want ErrInvalid", err)
	}
}

func TestVerify_Expiry(t *testing.T) {
	tok, err := Generate(testClaims(), secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A negative TTL makes any token older than "now minus TTL", i.e. expired.
	if _, err := Verify(tok, secret, -time.Second); err != ErrExpired {
		t.Errorf("err = %v, want ErrExpired", err)
	}

	// Zero TTL disables the expiry check.
	if _, err := Verify(tok, secret, 0); err != nil {
		t.Errorf("zero ttl: %v", err)
	}
}

func TestGenerate_CustomParamsRoundTrip(t *testing.T) {
	c := testClaims()
	c.CustomParams = map[string]string{"campaign": "summer", "slot": "top"}

	tok, err := Generate(c, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := Verify(tok, secret, time.Hour)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.CustomParams["campaign"] != "summer" || got.CustomParams["slot"] != "top" {
		t.Errorf("custom params = %v", got.CustomParams)
	}
}
