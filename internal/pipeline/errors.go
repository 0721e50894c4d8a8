package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrLocked        = errors.New("results tree locked")
)

// Wrap builds an error message that includes pipeline context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, pipeline, operation, message string, err error) error {
	detail := buildDetail(pipeline, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// wrapDispatchErr tags batch failures as external tool errors but lets
// cancellation pass through untagged so callers can recognize it.
func wrapDispatchErr(pipeline, batch string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return Wrap(ErrExternalTool, pipeline, "dispatch", batch, err)
}

func buildDetail(pipeline, operation, message string) string {
	parts := make([]string, 0, 3)
	if pipeline = strings.TrimSpace(pipeline); pipeline != "" {
		parts = append(parts, pipeline)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
