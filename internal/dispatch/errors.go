package dispatch

import (
	"fmt"

	"github.com/vk/redogrid/internal/model"
)

// PreconditionError reports a dispatch request that was rejected before any
// subprocess ran.
type PreconditionError struct {
	Target model.Target
	Root   string
	Err    error
}

func (e *PreconditionError) Error() string {
	switch {
	case e.Target != "" && e.Root != "":
		return fmt.Sprintf("precondition failed: %s does not resolve inside workspace %s", e.Target, e.Root)
	case e.Target != "":
		return fmt.Sprintf("precondition failed for %s: %v", e.Target, e.Err)
	default:
		return fmt.Sprintf("precondition failed: %v", e.Err)
	}
}

func (e *PreconditionError) Unwrap() error { return e.Err }
