package main

import (
	"strings"
	"testing"

	"nectar/crypto"
)

func TestGeneratePartnerIdentity(t *testing.T) {
	identity, err := generatePartnerIdentity()
	if err != nil {
		t.Fatalf("generate partner identity: %v", err)
	}
	if identity.PrivateKey == "" || identity.APIKey == "" || identity.Secret == "" {
		t.Fatalf("incomplete identity: %+v", identity)
	}
	if !strings.HasPrefix(identity.Address, string(crypto.PartnerPrefix)) {
		t.Fatalf("unexpected address prefix: %s", identity.Address)
	}

	// The printed key must round-trip to the same address.
	derived, err := derivePartnerAddress(identity.PrivateKey)
	if err != nil {
		t.Fatalf("derive partner address: %v", err)
	}
	if derived != identity.Address {
		t.Fatalf("address mismatch: generated %s derived %s", identity.Address, derived)
	}
}

func TestDerivePartnerAddressRejectsMalformedKeys(t *testing.T) {
	if _, err := derivePartnerAddress("not-hex"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := derivePartnerAddress("abcd"); err == nil {
		t.Fatal("expected error for truncated key")
	}
}
