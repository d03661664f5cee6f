// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IDKind is the declared runtime type of one side's external identifiers.
type IDKind string

const (
	KindInt     IDKind = "int"
	KindString  IDKind = "string"
	KindUUID    IDKind = "uuid"
	KindBytes   IDKind = "bytes"
	KindTuple   IDKind = "tuple"
	KindComplex IDKind = "complex"
)

// ParseIDKind validates a kind name from configuration.
func ParseIDKind(name string) (IDKind, error) {
	switch kind := IDKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case KindInt, KindString, KindUUID, KindBytes, KindTuple, KindComplex:
		return kind, nil
	case "":
		return KindUUID, nil
	default:
		return "", fmt.Errorf("%w: unknown id type %q", ErrIdentityType, name)
	}
}

// Generatable reports whether ids of this kind can be minted locally.
func (k IDKind) Generatable() bool {
	return k == KindUUID
}

// Generate mints a fresh id of this kind.
func (k IDKind) Generate() (ID, error) {
	if !k.Generatable() {
		return ID{}, fmt.Errorf("%w: ids of type %s cannot be generated", ErrIdentityType, k)
	}
	return UUIDID(uuid.New()), nil
}

// ID is an external identifier of one side. The zero value means "no id".
//
// IDs are comparable and can be used as map keys: two IDs are equal when they
// have the same kind and the same canonical form.
type ID struct {
	kind IDKind
	key  string
}

// IntID makes an integer id.
func IntID(v int64) ID {
	return ID{kind: KindInt, key: strconv.FormatInt(v, 10)}
}

// StringID makes a string id.
func StringID(v string) ID {
	return ID{kind: KindString, key: v}
}

// UUIDID makes a UUID id.
func UUIDID(v uuid.UUID) ID {
	return ID{kind: KindUUID, key: v.String()}
}

// BytesID makes a byte string id.
func BytesID(v []byte) ID {
	return ID{kind: KindBytes, key: hex.EncodeToString(v)}
}

// ComplexID makes a complex number id. Negative zero parts are stored as
// zero so that equal numbers give equal ids.
func ComplexID(v complex128) ID {
	re, im := real(v), imag(v)
	if re == 0 {
		re = 0
	}
	if im == 0 {
		im = 0
	}
	return ID{kind: KindComplex, key: strconv.FormatComplex(complex(re, im), 'g', -1, 128)}
}

// TupleID makes a tuple id. Elements must be scalars (strings, booleans or
// numbers); nested values are rejected.
func TupleID(elems ...any) (ID, error) {
	for i, elem := range elems {
		switch elem.(type) {
		case string, bool, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		default:
			return ID{}, fmt.Errorf("%w: tuple element %d has non-scalar type %T", ErrIdentityType, i, elem)
		}
	}
	if elems == nil {
		elems = []any{}
	}
	data, err := json.Marshal(elems)
	if err != nil {
		return ID{}, fmt.Errorf("%w: failed to encode tuple: %v", ErrIdentityType, err)
	}
	return ID{kind: KindTuple, key: string(data)}, nil
}

// ParseID restores an id from its canonical string form.
func ParseID(kind IDKind, s string) (ID, error) {
	switch kind {
	case KindInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("%w: invalid int id %q", ErrIdentityType, s)
		}
		return IntID(v), nil
	case KindString:
		return StringID(s), nil
	case KindUUID:
		v, err := uuid.Parse(s)
		if err != nil {
			return ID{}, fmt.Errorf("%w: invalid uuid id %q", ErrIdentityType, s)
		}
		return UUIDID(v), nil
	case KindBytes:
		v, err := hex.DecodeString(s)
		if err != nil {
			return ID{}, fmt.Errorf("%w: invalid bytes id %q", ErrIdentityType, s)
		}
		return BytesID(v), nil
	case KindComplex:
		v, err := strconv.ParseComplex(s, 128)
		if err != nil {
			return ID{}, fmt.Errorf("%w: invalid complex id %q", ErrIdentityType, s)
		}
		return ComplexID(v), nil
	case KindTuple:
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var elems []any
		if err := dec.Decode(&elems); err != nil {
			return ID{}, fmt.Errorf("%w: invalid tuple id %q", ErrIdentityType, s)
		}
		return TupleID(elems...)
	default:
		return ID{}, fmt.Errorf("%w: unknown id type %q", ErrIdentityType, kind)
	}
}

// MustParseID is like ParseID but panics on error. Intended for constants.
func MustParseID(kind IDKind, s string) ID {
	id, err := ParseID(kind, s)
	if err != nil {
		panic(err)
	}
	return id
}

// Kind returns the id's kind, or "" for the zero id.
func (id ID) Kind() IDKind {
	return id.kind
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id.kind == ""
}

// String returns the canonical form stored in the database.
func (id ID) String() string {
	return id.key
}

// Int returns the integer value of a KindInt id.
func (id ID) Int() (int64, bool) {
	if id.kind != KindInt {
		return 0, false
	}
	v, err := strconv.ParseInt(id.key, 10, 64)
	return v, err == nil
}

// UUID returns the UUID value of a KindUUID id.
func (id ID) UUID() (uuid.UUID, bool) {
	if id.kind != KindUUID {
		return uuid.Nil, false
	}
	v, err := uuid.Parse(id.key)
	return v, err == nil
}

// Bytes returns the value of a KindBytes id.
func (id ID) Bytes() ([]byte, bool) {
	if id.kind != KindBytes {
		return nil, false
	}
	v, err := hex.DecodeString(id.key)
	return v, err == nil
}

// Complex returns the value of a KindComplex id.
func (id ID) Complex() (complex128, bool) {
	if id.kind != KindComplex {
		return 0, false
	}
	v, err := strconv.ParseComplex(id.key, 128)
	return v, err == nil
}

// checkKind returns ErrIdentityType if id is not of the wanted kind.
func (id ID) checkKind(want IDKind) error {
	if id.kind != want {
		return fmt.Errorf("%w: got %s id %q, want %s", ErrIdentityType, id.kind, id.key, want)
	}
	return nil
}
