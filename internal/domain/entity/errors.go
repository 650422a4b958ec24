package entity

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrPatternNotFound   = errors.New("pattern not found")
	ErrStoreUnavailable  = errors.New("pattern store unavailable")
	ErrVersionConflict   = errors.New("record was modified concurrently")
	ErrDuplicateKey      = errors.New("pattern key already exists")
	ErrInvalidFieldPath  = errors.New("invalid field path")
	ErrInvalidInvoice    = errors.New("invalid invoice")
	ErrInvalidCorrection = errors.New("invalid correction")
	ErrUnknownPattern    = errors.New("unknown pattern type")
)
