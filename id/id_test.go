package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/points/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AccountID", id.NewAccountID, "acct_"},
		{"EntryID", id.NewEntryID, "pent_"},
		{"InterestID", id.NewInterestID, "intr_"},
		{"InviteID", id.NewInviteID, "invt_"},
		{"CandidateID", id.NewCandidateID, "cand_"},
		{"ChatID", id.NewChatID, "chat_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixAccount)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixAccount {
		t.Errorf("expected prefix %q, got %q", id.PrefixAccount, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewEntryID()
	parsed, err := id.Parse(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestParseWithPrefix(t *testing.T) {
	acct := id.NewAccountID()

	if _, err := id.ParseWithPrefix(acct.String(), id.PrefixAccount); err != nil {
		t.Errorf("matching prefix rejected: %v", err)
	}
	if _, err := id.ParseWithPrefix(acct.String(), id.PrefixEntry); err == nil {
		t.Error("mismatched prefix accepted")
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"", "not-a-typeid", "acct_!!!"} {
		if _, err := id.Parse(input); err == nil {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil String() = %q, want empty", nilID.String())
	}

	v, err := nilID.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("nil Value() = %v, want nil", v)
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewInviteID()

	text, err := original.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var parsed id.ID
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if parsed.String() != original.String() {
		t.Errorf("text round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestScan(t *testing.T) {
	original := id.NewChatID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatal(err)
	}
	if fromString.String() != original.String() {
		t.Errorf("scan string mismatch: %q", fromString.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !fromNil.IsNil() {
		t.Error("scan nil should yield nil ID")
	}

	var fromInt id.ID
	if err := fromInt.Scan(42); err == nil {
		t.Error("scan int should fail")
	}
}
