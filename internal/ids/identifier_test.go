package ids

import "testing"

func TestIdentifierRoundTrip(t *testing.T) {
	cases := []Identifier{
		Numeric(1),
		Numeric(4294967295),
		Name("orders"),
		Name("a"),
	}
	for _, id := range cases {
		encoded := id.Encode()
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode %v: %v", id, err)
		}
		if n != len(encoded) {
			t.Fatalf("decode consumed %d bytes, want %d", n, len(encoded))
		}
		if decoded.IsNumeric() != id.IsNumeric() || decoded.Number() != id.Number() || decoded.NameValue() != id.NameValue() {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, id)
		}
	}
}

func TestIdentifierValidate(t *testing.T) {
	if err := Numeric(0).Validate(); err != ErrUnspecified {
		t.Fatalf("expected ErrUnspecified for zero id, got %v", err)
	}
	if err := Name("").Validate(); err == nil {
		t.Fatal("expected error for empty name")
	}
	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := Name(string(long)).Validate(); err == nil {
		t.Fatal("expected error for over-long name")
	}
}

func TestByteSizeParse(t *testing.T) {
	cases := map[string]ByteSize{
		"0":         0,
		"unlimited": 0,
		"none":      0,
		"100":       100,
		"1MiB":      MiB,
		"2GiB":      2 * GiB,
		"1MB":       MB,
	}
	for input, want := range cases {
		got, err := ParseByteSize(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q = %d, want %d", input, got, want)
		}
	}
}

func TestDurationParse(t *testing.T) {
	d, err := ParseDuration("1h30m")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Minutes() != 90 {
		t.Fatalf("got %v, want 90m", d)
	}
	if d, err := ParseDuration("unlimited"); err != nil || d != 0 {
		t.Fatalf("expected unlimited to parse as 0, got %v err=%v", d, err)
	}
}
