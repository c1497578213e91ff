package match

import (
	"testing"

	"mediabot/internal/subscription"

	"github.com/stretchr/testify/assert"
)

func sub(owner int64, kw string) subscription.Subscription {
	return subscription.Subscription{OwnerID: owner, OwnerName: "u", Keyword: kw}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		subs  []subscription.Subscription
		want  []Result
	}{
		{
			name:  "no subscriptions",
			title: "Batman Begins (2005)",
		},
		{
			name:  "case insensitive substring",
			title: "World War Z (2013)",
			subs:  []subscription.Subscription{sub(1, "war")},
			want:  []Result{{OwnerID: 1, OwnerName: "u", Keyword: "war"}},
		},
		{
			name:  "substring inside a word",
			title: "Warehouse 13",
			subs:  []subscription.Subscription{sub(1, "war")},
			want:  []Result{{OwnerID: 1, OwnerName: "u", Keyword: "war"}},
		},
		{
			name:  "first keyword wins per owner",
			title: "Batman Begins (2005)",
			subs:  []subscription.Subscription{sub(1, "begins"), sub(2, "bat"), sub(1, "batman")},
			want: []Result{
				{OwnerID: 1, OwnerName: "u", Keyword: "begins"},
				{OwnerID: 2, OwnerName: "u", Keyword: "bat"},
			},
		},
		{
			name:  "non matching ignored",
			title: "The Wire - S03",
			subs:  []subscription.Subscription{sub(1, "batman"), sub(2, "the wire")},
			want:  []Result{{OwnerID: 2, OwnerName: "u", Keyword: "the wire"}},
		},
		{
			name:  "unicode title folding",
			title: "AMÉLIE (2001)",
			subs:  []subscription.Subscription{sub(3, "amélie")},
			want:  []Result{{OwnerID: 3, OwnerName: "u", Keyword: "amélie"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.title, tc.subs))
		})
	}
}
