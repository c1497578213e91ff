// Package subscription stores per-user keyword subscriptions.
//
// Keywords are normalized once here (trimmed, lower-cased) so matching
// and storage always compare like with like.
package subscription

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxKeywordLength is counted in runes.
const MaxKeywordLength = 20

type Owner struct {
	ID          int64
	DisplayName string
}

// Subscription is immutable once created; removal is the only change.
type Subscription struct {
	OwnerID   int64
	OwnerName string
	Keyword   string
	AddedAt   time.Time
}

// Fold lower-cases s with Unicode rules. Titles go through the same
// function before matching.
func Fold(s string) string {
	// A Caser keeps state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(s)
}

// Normalize trims and lower-cases a raw keyword.
func Normalize(raw string) string {
	return Fold(strings.TrimSpace(raw))
}

func tooLong(kw string) bool {
	return utf8.RuneCountInString(kw) > MaxKeywordLength
}
