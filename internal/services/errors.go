package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputDefect        = errors.New("input defect")
	ErrToolkitFailure     = errors.New("toolkit failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageNotFound    = errors.New("storage object not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRecordNotFound     = errors.New("job record not found")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrTransient          = errors.New("transient failure")
)

// Kind is a stable label for an error's taxonomy class.
type Kind string

const (
	KindInputDefect        Kind = "input_defect"
	KindToolkitFailure     Kind = "toolkit_failure"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindStorageNotFound    Kind = "storage_not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindRecordNotFound     Kind = "record_not_found"
	KindValidation         Kind = "validation"
	KindConfiguration      Kind = "configuration"
	KindTransient          Kind = "transient"
)

var kindMarkers = []struct {
	marker error
	kind   Kind
}{
	{ErrInputDefect, KindInputDefect},
	{ErrToolkitFailure, KindToolkitFailure},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrStorageNotFound, KindStorageNotFound},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrRecordNotFound, KindRecordNotFound},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrTransient, KindTransient},
}

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf returns the first taxonomy marker found in err's chain. Errors that
// carry no marker (including context cancellation) are transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	return KindTransient
}

// Retryable reports whether a failed attempt may succeed if redelivered.
// Input defects, missing objects or records, permission and configuration
// problems are permanent.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindToolkitFailure, KindStorageUnavailable, KindTransient:
		return true
	default:
		return false
	}
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
