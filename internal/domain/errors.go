package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPromptTooLong is returned by the gate when a prompt exceeds the model budget.
	ErrPromptTooLong = errors.New("prompt too long")
	// ErrAuthentication means the inference API rejected (or never received) the token.
	ErrAuthentication = errors.New("authentication failure")
	// ErrConnection means the inference API could not be reached.
	ErrConnection = errors.New("connection failure")
	// ErrRemoteStream means the remote side failed or sent garbage mid-stream.
	ErrRemoteStream = errors.New("remote stream failure")
	// ErrTokenizerUnavailable means the fixed vocabulary could not be loaded.
	ErrTokenizerUnavailable = errors.New("tokenizer unavailable")
	// ErrInvalidInput covers session inputs that are not ready for generation.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	CodePromptTooLong          = "PROMPT_TOO_LONG"
	CodeAuthenticationFailure  = "AUTHENTICATION_FAILURE"
	CodeStreamTransportFailure = "STREAM_TRANSPORT_FAILURE"
	CodeTokenizerUnavailable   = "TOKENIZER_UNAVAILABLE"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnknown                = "UNKNOWN"
)

// DomainError carries a stable code and a message fit for the user next to
// the wrapped cause.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage returns the message without internal details.
func (e *DomainError) UserMessage() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewPromptTooLongError reports a prompt of count tokens against limit.
func NewPromptTooLongError(count, limit int) error {
	return &DomainError{
		Code:    CodePromptTooLong,
		Message: fmt.Sprintf("Conversation length too long (%d tokens). Please keep it under %d tokens.", count, limit),
		Err:     ErrPromptTooLong,
	}
}

func NewAuthenticationError(message string, cause error) error {
	return &DomainError{
		Code:    CodeAuthenticationFailure,
		Message: message,
		Err:     join(ErrAuthentication, cause),
	}
}

func NewConnectionError(cause error) error {
	return &DomainError{
		Code:    CodeStreamTransportFailure,
		Message: "could not reach the inference API",
		Err:     join(ErrConnection, cause),
	}
}

func NewRemoteStreamError(message string, cause error) error {
	return &DomainError{
		Code:    CodeStreamTransportFailure,
		Message: message,
		Err:     join(ErrRemoteStream, cause),
	}
}

func NewTokenizerUnavailableError(cause error) error {
	return &DomainError{
		Code:    CodeTokenizerUnavailable,
		Message: "the tokenizer vocabulary could not be loaded",
		Err:     join(ErrTokenizerUnavailable, cause),
	}
}

func NewInvalidInputError(message string) error {
	return &DomainError{
		Code:    CodeInvalidInput,
		Message: message,
		Err:     ErrInvalidInput,
	}
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func IsPromptTooLong(err error) bool {
	return errors.Is(err, ErrPromptTooLong)
}

func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsStreamTransportFailure reports connection and mid-stream failures alike.
func IsStreamTransportFailure(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrRemoteStream)
}

func IsTokenizerUnavailable(err error) bool {
	return errors.Is(err, ErrTokenizerUnavailable)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Code extracts the DomainError code, or CodeUnknown.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// UserMessage returns the DomainError message when there is one, else err.Error().
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.UserMessage()
	}
	return err.Error()
}
