package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/history/id"
)

func TestNewRegistrationID_Prefix(t *testing.T) {
	regID := id.NewRegistrationID()
	if regID.Prefix() != id.PrefixRegistration {
		t.Fatalf("expected prefix %q, got %q", id.PrefixRegistration, regID.Prefix())
	}
	if !strings.HasPrefix(regID.String(), "reg_") {
		t.Fatalf("expected reg_ prefix, got %q", regID.String())
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	msgID := id.NewMessageID()

	if _, err := id.ParseRegistrationID(msgID.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}

	parsed, err := id.ParseMessageID(msgID.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != msgID.String() {
		t.Fatalf("expected %q, got %q", msgID.String(), parsed.String())
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	id.MustParse("not a type id")
}

func TestText_RoundTrip(t *testing.T) {
	regID := id.NewRegistrationID()
	text, err := regID.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back id.ID
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.String() != regID.String() {
		t.Fatalf("expected %q, got %q", regID.String(), back.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !empty.IsNil() {
		t.Fatal("expected Nil ID")
	}
}

func TestScan(t *testing.T) {
	msgID := id.NewMessageID()

	var scanned id.ID
	if err := scanned.Scan(msgID.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if scanned.String() != msgID.String() {
		t.Fatalf("expected %q, got %q", msgID.String(), scanned.String())
	}

	if err := scanned.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !scanned.IsNil() {
		t.Fatal("expected Nil after scanning NULL")
	}

	if err := scanned.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
