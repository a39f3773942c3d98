package main

import "testing"

func TestFieldConfigMatches(t *testing.T) {
	cfg := defaultFieldConfig()
	if !cfg.matches(cfg.Vars()) {
		t.Fatalf("config does not match its own variable set")
	}

	// Order must not matter.
	vars := cfg.Vars()
	vars[0], vars[len(vars)-1] = vars[len(vars)-1], vars[0]
	if !cfg.matches(vars) {
		t.Fatalf("reordered set should match")
	}
}

func TestFieldConfigMismatch(t *testing.T) {
	cfg := defaultFieldConfig()

	short := cfg.Vars()[1:]
	if cfg.matches(short) {
		t.Fatalf("shorter set should not match")
	}

	swapped := cfg.Vars()
	swapped[0] = FieldID(999)
	if cfg.matches(swapped) {
		t.Fatalf("set with a foreign field should not match")
	}
}

func TestFieldConfigHasVar(t *testing.T) {
	cfg := defaultFieldConfig()
	if !cfg.hasVar(kVarHealth) || !cfg.hasVar(kVarAmmoBase+3) {
		t.Fatalf("declared variables missing from config")
	}
	if cfg.hasVar(FieldID(999)) {
		t.Fatalf("undeclared variable reported present")
	}
}

func TestFieldNames(t *testing.T) {
	if got := fieldName(kVarFragCount); got != "FRAGCOUNT" {
		t.Fatalf("fieldName(kVarFragCount) = %q", got)
	}
	if got := fieldName(kVarAmmoBase + 4); got != "AMMO4" {
		t.Fatalf("ammo field name = %q", got)
	}
	if got := fieldName(FieldID(999)); got != "UNKNOWN" {
		t.Fatalf("unknown field name = %q", got)
	}
}

func TestLatin1RoundTrip(t *testing.T) {
	for _, s := range []string{"Player", "Ragnvald", "café"} {
		if got := decodeLatin1(encodeLatin1(s)); got != s {
			t.Fatalf("latin1 round trip of %q yielded %q", s, got)
		}
	}
}
