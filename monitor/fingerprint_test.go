package monitor

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Visa section closed May 1")
	b := Fingerprint("Visa section closed May 1")
	if a != b {
		t.Fatalf("same input produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprintWhitespaceInsensitive(t *testing.T) {
	a := Fingerprint("Consular notices\nVisa section closed")
	b := Fingerprint("  Consular   notices \t Visa section closed  ")
	if a != b {
		t.Fatal("whitespace-only difference changed the fingerprint")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	if Fingerprint("notice A") == Fingerprint("notice B") {
		t.Fatal("distinct content produced equal fingerprints")
	}
}
