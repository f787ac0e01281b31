package validation

import (
	"time"

	"github.com/devrev/taskqueue/internal/errors"
)

// Validator validates queue admissions
type Validator struct {
	clock func() time.Time
}

// NewValidator creates a validator that judges enqueue times against clock.
// A nil clock means time.Now.
func NewValidator(clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	return &Validator{clock: clock}
}

// ValidateAdmission validates the arguments of an admission
func (v *Validator) ValidateAdmission(id, enqueueTime int64) error {
	if err := v.ValidateID(id); err != nil {
		return err
	}
	return v.ValidateEnqueueTime(enqueueTime)
}

// ValidateID rejects non-positive task IDs
func (v *Validator) ValidateID(id int64) error {
	if id <= 0 {
		return errors.NegativeID(id)
	}
	return nil
}

// ValidateEnqueueTime rejects enqueue times that are non-positive or in the future
func (v *Validator) ValidateEnqueueTime(enqueueTime int64) error {
	now := v.clock().Unix()
	if enqueueTime <= 0 || enqueueTime > now {
		return errors.InvalidEnqueueTime(enqueueTime, now)
	}
	return nil
}
