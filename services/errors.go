package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ErrorKind classifies a service failure so the HTTP layer can pick the right
// status and the UI can render a specific message.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindNotFound        ErrorKind = "not_found"
	KindAlreadyVoted    ErrorKind = "already_voted"
	KindVotingClosed    ErrorKind = "voting_closed"
	KindSourceRejected  ErrorKind = "source_rejected"
	KindIncompleteState ErrorKind = "incomplete_bracket_state"
	KindStorage         ErrorKind = "storage_error"
)

// Sub-reasons for KindSourceRejected, surfaced so the UI can prompt precisely
// (e.g., "get a fresh link" vs "come back later").
const (
	SourceNotFound    = "not_found"
	SourceInactive    = "inactive"
	SourceNotYetValid = "not_yet_valid"
	SourceExpired     = "expired"
)

// AppError carries a kind plus a human-readable message. Reason is only set
// for source rejections.
type AppError struct {
	Kind    ErrorKind
	Message string
	Reason  string
}

func (e *AppError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...interface{}) *AppError {
	return newErr(KindInvalidInput, format, args...)
}

func notFound(format string, args ...interface{}) *AppError {
	return newErr(KindNotFound, format, args...)
}

func votingClosed(format string, args ...interface{}) *AppError {
	return newErr(KindVotingClosed, format, args...)
}

func alreadyVoted(format string, args ...interface{}) *AppError {
	return newErr(KindAlreadyVoted, format, args...)
}

func incompleteState(format string, args ...interface{}) *AppError {
	return newErr(KindIncompleteState, format, args...)
}

func sourceRejected(reason, format string, args ...interface{}) *AppError {
	e := newErr(KindSourceRejected, format, args...)
	e.Reason = reason
	return e
}

// ErrKind extracts the kind from any error in the chain. Unclassified errors
// (raw DB failures that escaped a service) count as storage errors.
func ErrKind(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindStorage
}

// respondError maps a service error onto the HTTP response. Storage errors
// are logged by the caller and surfaced generically.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	status := fiber.StatusInternalServerError
	switch appErr.Kind {
	case KindInvalidInput, KindIncompleteState:
		status = fiber.StatusBadRequest
	case KindNotFound:
		status = fiber.StatusNotFound
	case KindAlreadyVoted:
		status = fiber.StatusConflict
	case KindVotingClosed:
		status = fiber.StatusForbidden
	case KindSourceRejected:
		status = fiber.StatusForbidden
	}

	body := fiber.Map{"error": appErr.Message, "kind": string(appErr.Kind)}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	return c.Status(status).JSON(body)
}
