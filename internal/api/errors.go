package api

import (
	"errors"
	"fmt"

	"vidgen/internal/model"
)

var ErrNotFound = errors.New("not found")

// NotFoundError means the server does not know the video id.
type NotFoundError struct {
	Op string
	ID model.JobID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: video %s not found", e.Op, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransportError covers every other failed exchange: network errors,
// unexpected status codes and undecodable bodies.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
