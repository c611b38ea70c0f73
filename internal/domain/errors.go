package domain

import "errors"

// Not-found errors, mapped to 404 by the handlers.
var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrGoalNotFound     = errors.New("goal not found")
	ErrRaceNotFound     = errors.New("race not found")
	ErrEntrantNotFound  = errors.New("entrant not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrRequestNotFound  = errors.New("category request not found")
)

// SafeError is a business-rule or authorization violation whose message is
// safe to display to the user verbatim.
type SafeError struct {
	Message string
}

func (e *SafeError) Error() string {
	return e.Message
}

// Safe wraps a message in a SafeError.
func Safe(message string) error {
	return &SafeError{Message: message}
}

// IsSafe reports whether err is a SafeError.
func IsSafe(err error) bool {
	var se *SafeError
	return errors.As(err, &se)
}
