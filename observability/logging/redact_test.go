package logging

import "testing"

func TestMaskFieldRedactsSecrets(t *testing.T) {
	attr := MaskField("api_key", "pk_live_abcdef")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("api_key not masked: %s", attr.Value.String())
	}
	attr = MaskField("signature", "deadbeef")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("signature not masked: %s", attr.Value.String())
	}
}

func TestMaskFieldPassesLedgerIdentifiers(t *testing.T) {
	for _, key := range []string{"partner", "holder", "vault", "route"} {
		attr := MaskField(key, "nec1example")
		if attr.Value.String() != "nec1example" {
			t.Fatalf("%s should not be masked, got %s", key, attr.Value.String())
		}
	}
}

func TestMaskFieldKeepsEmptyValues(t *testing.T) {
	attr := MaskField("api_key", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value changed: %q", attr.Value.String())
	}
}

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted: %v", keys)
		}
	}
}
