package locator

import "errors"

var (
	// ErrServiceDisabled is returned when authorization is determined but location is unavailable.
	ErrServiceDisabled = errors.New("location services are disabled")
	// ErrCannotFetchLocation is returned when a request timed out without any sample.
	ErrCannotFetchLocation = errors.New("cannot fetch location")
	// ErrPermissionPromptUnavailable is returned when authorization is undetermined and no usage mode is configured.
	ErrPermissionPromptUnavailable = errors.New("no location usage mode declared, cannot request authorization")
	// ErrCoordinatorClosed is returned by operations on a closed coordinator.
	ErrCoordinatorClosed = errors.New("location coordinator is closed")
	// ErrInvalidSubscription is returned for subscription options that cannot be honored.
	ErrInvalidSubscription = errors.New("invalid subscription")
)
