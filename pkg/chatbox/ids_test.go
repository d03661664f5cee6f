// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestParseIDKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    IDKind
		wantErr bool
	}{
		{"", KindUUID, false},
		{"int", KindInt, false},
		{" String ", KindString, false},
		{"bytes", KindBytes, false},
		{"tuple", KindTuple, false},
		{"complex", KindComplex, false},
		{"float", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIDKind(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrIdentityType) {
				t.Errorf("ParseIDKind(%q): got %v, want ErrIdentityType", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseIDKind(%q): got %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestIDCanonicalForms(t *testing.T) {
	t.Parallel()
	u := uuid.MustParse("9a3b0c52-0d4e-4f55-8b9a-1c2d3e4f5a6b")
	tuple, err := TupleID("room", 7, true)
	if err != nil {
		t.Fatalf("TupleID: %v", err)
	}

	tests := []struct {
		id   ID
		kind IDKind
		str  string
	}{
		{IntID(-12), KindInt, "-12"},
		{StringID("alice"), KindString, "alice"},
		{UUIDID(u), KindUUID, u.String()},
		{BytesID([]byte{0xde, 0xad}), KindBytes, "dead"},
		{ComplexID(complex(1, -2)), KindComplex, "(1-2i)"},
		{tuple, KindTuple, `["room",7,true]`},
	}
	for _, tt := range tests {
		if tt.id.Kind() != tt.kind || tt.id.String() != tt.str {
			t.Errorf("got %s %q, want %s %q", tt.id.Kind(), tt.id.String(), tt.kind, tt.str)
		}
		parsed, err := ParseID(tt.kind, tt.str)
		if err != nil {
			t.Errorf("ParseID(%s, %q): %v", tt.kind, tt.str, err)
			continue
		}
		if parsed != tt.id {
			t.Errorf("ParseID(%s, %q): got %v, want %v", tt.kind, tt.str, parsed, tt.id)
		}
	}
}

func TestComplexIDNegativeZero(t *testing.T) {
	t.Parallel()
	negZero := math.Copysign(0, -1)
	tests := []struct {
		name string
		a, b complex128
	}{
		{"zero", complex(0, 0), complex(negZero, negZero)},
		{"real part", complex(negZero, 2), complex(0, 2)},
		{"imaginary part", complex(3, negZero), complex(3, 0)},
	}
	for _, tt := range tests {
		a, b := ComplexID(tt.a), ComplexID(tt.b)
		if a != b {
			t.Errorf("%s: got %q and %q, want equal ids", tt.name, a, b)
		}
	}
	parsed, err := ParseID(KindComplex, "(-0-0i)")
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if parsed != ComplexID(0) {
		t.Errorf("parsed negative zero: got %q, want %q", parsed, ComplexID(0))
	}
}

func TestIDAccessors(t *testing.T) {
	t.Parallel()
	if v, ok := IntID(42).Int(); !ok || v != 42 {
		t.Errorf("Int: got %d, %v", v, ok)
	}
	if _, ok := StringID("42").Int(); ok {
		t.Error("Int on a string id should fail")
	}
	if b, ok := BytesID([]byte("hi")).Bytes(); !ok || !bytes.Equal(b, []byte("hi")) {
		t.Errorf("Bytes: got %q, %v", b, ok)
	}
	if c, ok := ComplexID(3i).Complex(); !ok || c != 3i {
		t.Errorf("Complex: got %v, %v", c, ok)
	}
	if !(ID{}).IsZero() {
		t.Error("zero ID should be zero")
	}
	if StringID("").IsZero() {
		t.Error("empty string id is a valid id")
	}
}

func TestIDErrors(t *testing.T) {
	t.Parallel()
	checks := []struct {
		name string
		err  error
	}{
		{"nested tuple", func() error { _, err := TupleID("a", []string{"nested"}); return err }()},
		{"bad int", func() error { _, err := ParseID(KindInt, "4x"); return err }()},
		{"bad uuid", func() error { _, err := ParseID(KindUUID, "not-a-uuid"); return err }()},
		{"bad bytes", func() error { _, err := ParseID(KindBytes, "zz"); return err }()},
		{"generate int", func() error { _, err := KindInt.Generate(); return err }()},
		{"kind mismatch", IntID(1).checkKind(KindString)},
	}
	for _, c := range checks {
		if !errors.Is(c.err, ErrIdentityType) {
			t.Errorf("%s: got %v, want ErrIdentityType", c.name, c.err)
		}
	}

	generated, err := KindUUID.Generate()
	if err != nil || generated.Kind() != KindUUID {
		t.Errorf("Generate uuid: got %v, %v", generated, err)
	}
	if err = IntID(1).checkKind(KindInt); err != nil {
		t.Errorf("checkKind: %v", err)
	}
}
