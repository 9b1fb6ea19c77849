package model

import "errors"

var (
	ErrLoadFailed              = errors.New("load failed")
	ErrAvailabilityCheckFailed = errors.New("availability check failed")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrNotFound                = errors.New("not found")
	ErrRegistrationRejected    = errors.New("registration rejected")
	ErrAttendanceMarkFailed    = errors.New("attendance mark failed")
	ErrNotSelf                 = errors.New("registration is only possible for the signed-in user")
)
