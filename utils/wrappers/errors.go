// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers provides the error collector and binary packer used by the
// relay's storage codecs.
package wrappers

const (
	ByteLen  = 1
	ShortLen = 2
	IntLen   = 4
	LongLen  = 8
	// WordLen is the width of a big-endian 256-bit word.
	WordLen = 32
)

// Errs collects the first error of a series of operations.
type Errs struct {
	Err error
}

// Errored returns true if an error has been recorded.
func (errs *Errs) Errored() bool {
	return errs.Err != nil
}

// Add records the first non-nil error.
func (errs *Errs) Add(errors ...error) {
	if errs.Err != nil {
		return
	}
	for _, err := range errors {
		if err != nil {
			errs.Err = err
			return
		}
	}
}
