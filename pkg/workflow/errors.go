package workflow

import "github.com/smartspec/smartspec/pkg/apperr"

func errDescriptor(format string, args ...any) error {
	return apperr.Validation(format, args...)
}
