package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrListing        = errors.New("listing failed")
	ErrDownload       = errors.New("download failed")
	ErrDecode         = errors.New("decode failed")
	ErrEncode         = errors.New("encode failed")
	ErrUpload         = errors.New("upload failed")
	ErrUnsupportedKey = errors.New("unsupported key")
	ErrConverterPanic = errors.New("converter panicked")
)

// Stage is the step of a single conversion that failed.
type Stage string

const (
	StageDownload Stage = "download"
	StageDecode   Stage = "decode"
	StageEncode   Stage = "encode"
	StageUpload   Stage = "upload"
)

func (s Stage) sentinel() error {
	switch s {
	case StageDownload:
		return ErrDownload
	case StageDecode:
		return ErrDecode
	case StageEncode:
		return ErrEncode
	default:
		return ErrUpload
	}
}

// ConversionError is a per-item failure. It matches both the stage sentinel
// (ErrDownload, ErrDecode, ...) and the underlying cause with errors.Is/As.
type ConversionError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Key, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{e.Stage.sentinel(), e.Err}
}

// ListingError means the bucket could not be enumerated. It is the only
// error that ends a batch.
type ListingError struct {
	Err error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list objects: %v", e.Err)
}

func (e *ListingError) Unwrap() []error {
	return []error{ErrListing, e.Err}
}

// StageOf returns the failed stage of a per-item error, or "" when err is not one.
func StageOf(err error) Stage {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}
