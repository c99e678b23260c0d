package studienet

import (
	"fmt"
)

// AuthError means the session could not be established or its cookies could not be read.
// The run cannot continue after one.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("studienet: %s: %s", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ExtractionError means a page did not have the structure the selectors expect, which
// usually means the portal's layout changed. The run cannot continue after one.
type ExtractionError struct {
	Page     string
	Selector string
	// index of the offending row (within its group for materials), -1 if not row related
	Row    int
	Group  int
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("studienet: extract %s (%s): %s", e.Page, e.Selector, e.Reason)
	}
	return fmt.Sprintf(
		"studienet: extract %s (%s): group %d row %d: %s",
		e.Page, e.Selector, e.Group, e.Row, e.Reason,
	)
}
