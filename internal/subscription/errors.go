package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKeyword     = errors.New("keyword is empty")
	ErrKeywordTooLong   = errors.New("keyword too long")
	ErrLimitReached     = errors.New("keyword limit reached")
	ErrDuplicateKeyword = errors.New("keyword already exists")
	ErrKeywordNotFound  = errors.New("keyword not found")
)

// Error is a user-correctable registry failure.
// errors.Is matches it against the sentinel it wraps.
type Error struct {
	Op      string // "add" | "remove"
	Keyword string
	Limit   int
	err     error
}

func (e *Error) Error() string {
	if e.Keyword == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Keyword, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// UserMessage is the reply shown to the person who issued the command.
func (e *Error) UserMessage() string {
	switch {
	case errors.Is(e.err, ErrEmptyKeyword):
		return fmt.Sprintf("Keyword required for %s action!", e.Op)
	case errors.Is(e.err, ErrKeywordTooLong):
		return fmt.Sprintf("Keyword too long! Please shorten it to %d characters or less.", MaxKeywordLength)
	case errors.Is(e.err, ErrLimitReached):
		return "You've reached the keyword limit! Please remove one before adding another."
	case errors.Is(e.err, ErrDuplicateKeyword):
		return fmt.Sprintf("Keyword `%s` already exists!", e.Keyword)
	case errors.Is(e.err, ErrKeywordNotFound):
		return fmt.Sprintf("Keyword `%s` doesn't exist!", e.Keyword)
	}
	return e.Error()
}

func newError(op, keyword string, limit int, err error) *Error {
	return &Error{Op: op, Keyword: keyword, Limit: limit, err: err}
}

// UserMessage returns the chat-facing text for err, or "" when err is not
// a registry validation failure.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return ""
}
