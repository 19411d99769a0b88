package provider

import (
	"errors"
	"fmt"

	"github.com/kory-ai/workbench-core/internal/model"
)

// errTransient is the sentinel every transient provider failure wraps.
// ExecuteWithRetry advances the fallback chain on any error satisfying
// errors.Is(err, errTransient) or errors.Is(err, model.ErrRateLimited); any
// other error is treated as non-retryable and returned to the caller
// immediately (spec §4.5: "on transient failure ... it advances to the next
// hop").
var errTransient = errors.New("provider: transient failure")

// Transient wraps err so isTransient recognizes it as retryable: network
// errors, 5xx responses, and provider-identified quota errors. Adapter
// packages call this when translating SDK errors.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errTransient, err)
}

func isTransient(err error) bool {
	return errors.Is(err, errTransient) || errors.Is(err, model.ErrRateLimited)
}
