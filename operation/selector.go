// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package operation

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

const (
	// SelectorCodeLen is the width of a ByCode selector.
	SelectorCodeLen = 4
	// MaxSelectorNameLen bounds the byte length of a ByName selector.
	MaxSelectorNameLen = 32

	// Wire discriminants. These are part of the hashed encoding and must not
	// change.
	selectorCodeTag byte = 0
	selectorNameTag byte = 1
)

// SelectorKind tags which variant of a Selector is populated.
type SelectorKind uint8

const (
	SelectorUnset SelectorKind = iota
	SelectorByCode
	SelectorByName
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorByCode:
		return "code"
	case SelectorByName:
		return "name"
	default:
		return "unset"
	}
}

// Selector names the entry point of the destination program: either a
// human-readable method name or a 4-byte code.
type Selector struct {
	Kind SelectorKind
	Code [SelectorCodeLen]byte
	Name string
}

func ByCode(code [SelectorCodeLen]byte) Selector {
	return Selector{Kind: SelectorByCode, Code: code}
}

// ByCodeUint32 builds a ByCode selector from its big-endian numeric form.
func ByCodeUint32(code uint32) Selector {
	var c [SelectorCodeLen]byte
	binary.BigEndian.PutUint32(c[:], code)
	return ByCode(c)
}

func ByName(name string) Selector {
	return Selector{Kind: SelectorByName, Name: name}
}

// Uint32 returns the numeric form of a ByCode selector.
func (s Selector) Uint32() uint32 {
	return binary.BigEndian.Uint32(s.Code[:])
}

// Verify checks that the selector can be encoded.
func (s Selector) Verify() error {
	switch s.Kind {
	case SelectorByCode:
		return nil
	case SelectorByName:
		switch {
		case len(s.Name) == 0:
			return fmt.Errorf("%w: empty name", ErrInvalidSelector)
		case len(s.Name) > MaxSelectorNameLen:
			return fmt.Errorf("%w: %d > %d bytes", ErrSelectorTooBig, len(s.Name), MaxSelectorNameLen)
		case !utf8.ValidString(s.Name):
			return fmt.Errorf("%w: name is not utf-8", ErrInvalidSelector)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSelector, s.Kind)
	}
}

// Bytes returns discriminant(1) || length(1) || payload.
func (s Selector) Bytes() ([]byte, error) {
	if err := s.Verify(); err != nil {
		return nil, err
	}
	if s.Kind == SelectorByCode {
		b := make([]byte, 0, 2+SelectorCodeLen)
		b = append(b, selectorCodeTag, SelectorCodeLen)
		return append(b, s.Code[:]...), nil
	}
	b := make([]byte, 0, 2+len(s.Name))
	b = append(b, selectorNameTag, byte(len(s.Name)))
	return append(b, s.Name...), nil
}

// ParseSelector is the inverse of Selector.Bytes and rejects trailing data.
func ParseSelector(b []byte) (Selector, error) {
	if len(b) < 2 {
		return Selector{}, fmt.Errorf("%w: %d bytes", ErrInvalidSelector, len(b))
	}
	tag, size, payload := b[0], int(b[1]), b[2:]
	if len(payload) != size {
		return Selector{}, fmt.Errorf("%w: declared %d bytes, got %d", ErrInvalidSelector, size, len(payload))
	}

	var s Selector
	switch tag {
	case selectorCodeTag:
		if size != SelectorCodeLen {
			return Selector{}, fmt.Errorf("%w: code of %d bytes", ErrInvalidSelector, size)
		}
		s = Selector{Kind: SelectorByCode}
		copy(s.Code[:], payload)
	case selectorNameTag:
		s = ByName(string(payload))
	default:
		return Selector{}, fmt.Errorf("%w: unknown tag %d", ErrInvalidSelector, tag)
	}
	return s, s.Verify()
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectorByCode:
		return "0x" + hex.EncodeToString(s.Code[:])
	case SelectorByName:
		return s.Name
	default:
		return "<unset>"
	}
}
