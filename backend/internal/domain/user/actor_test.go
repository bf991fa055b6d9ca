package user

import "testing"

func TestOwnsAcceptsLegacyPrefix(t *testing.T) {
	if !Owns("ABC123", "ABC123") || !Owns(LegacyCodePrefix+"ABC123", "ABC123") {
		t.Fatalf("owner not recognised")
	}
	if Owns("ABC123", "") || Owns("XYZ789", "ABC123") {
		t.Fatalf("non-owner accepted")
	}
	if !(Actor{Code: "ABC123"}).Owns(LegacyCodePrefix + "ABC123") {
		t.Fatalf("actor should own legacy record")
	}
	if (Actor{}).Owns("") {
		t.Fatalf("anonymous actor must not own anything")
	}
}
