// Package match decides which subscribers care about a notification title.
package match

import (
	"strings"

	"mediabot/internal/subscription"
)

type Result struct {
	OwnerID   int64
	OwnerName string
	Keyword   string
}

// Match returns at most one Result per owner, in the order owners first
// matched. subs must be in insertion order; an owner's first matching
// keyword wins. Matching is a case-insensitive substring test, so "war"
// matches "Warehouse 13".
func Match(title string, subs []subscription.Subscription) []Result {
	if len(subs) == 0 {
		return nil
	}
	folded := subscription.Fold(title)

	seen := make(map[int64]struct{}, len(subs))
	var out []Result
	for _, s := range subs {
		if _, dup := seen[s.OwnerID]; dup {
			continue
		}
		if s.Keyword == "" || !strings.Contains(folded, s.Keyword) {
			continue
		}
		seen[s.OwnerID] = struct{}{}
		out = append(out, Result{OwnerID: s.OwnerID, OwnerName: s.OwnerName, Keyword: s.Keyword})
	}
	return out
}
