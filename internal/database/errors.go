package database

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrServerUnavailable  = errors.New("database server is unavailable")
	ErrDefinitionLoad     = errors.New("could not load migration definition")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStatementExecution = errors.New("statement execution failed")
)

// DefinitionError is returned when a definition file cannot be read or decoded
type DefinitionError struct {
	Name string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("could not load migration definition [%s]: %v", e.Name, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinitionLoad
}

// StatementError is returned for the first failing statement of a migration body
type StatementError struct {
	Migration string
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("could not execute statement [%s] of migration [%s]: %v", e.Statement, e.Migration, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

func (e *StatementError) Is(target error) bool {
	return target == ErrStatementExecution
}

// Unavailable wraps a transport or health probe failure so that it matches ErrServerUnavailable
func Unavailable(err error) error {
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrServerUnavailable.Error(), e.err)
}

func (e *unavailableError) Unwrap() error {
	return e.err
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrServerUnavailable
}
