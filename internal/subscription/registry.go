package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediabot/internal/storage"
	logx "mediabot/pkg/logx"
)

const keyPrefix = "keywords/"

// record is the persisted shape of one owner's subscriptions.
type record struct {
	OwnerID   int64   `json:"owner_id"`
	OwnerName string  `json:"owner_name"`
	Keywords  []entry `json:"keywords"`
}

type entry struct {
	Keyword string    `json:"keyword"`
	AddedAt time.Time `json:"added_at"`
}

// Registry enforces normalization, uniqueness and limits on top of a Store.
//
// Each owner lives under its own key, so writes for different owners never
// touch the same record. Writes for one owner are serialized in-process.
// Nothing is cached between calls.
type Registry struct {
	store storage.Store
	log   logx.Logger
	locks keyedMutex

	clockMu sync.Mutex
	last    time.Time
	now     func() time.Time
}

func NewRegistry(store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store: store,
		log:   log,
		now:   time.Now,
		locks: keyedMutex{m: map[int64]*lockEntry{}},
	}
}

// Add validates raw and appends it to the owner's subscriptions.
// Checks run in order: empty, too long, limit (when limit > 0), duplicate.
func (r *Registry) Add(ctx context.Context, owner Owner, raw string, limit int) (Subscription, error) {
	kw := Normalize(raw)
	if kw == "" {
		return Subscription{}, newError("add", "", limit, ErrEmptyKeyword)
	}
	if tooLong(kw) {
		return Subscription{}, newError("add", kw, limit, ErrKeywordTooLong)
	}

	unlock := r.locks.lock(owner.ID)
	defer unlock()

	rec, err := r.load(ctx, owner.ID)
	if err != nil {
		return Subscription{}, err
	}
	if limit > 0 && len(rec.Keywords) >= limit {
		return Subscription{}, newError("add", kw, limit, ErrLimitReached)
	}
	for _, e := range rec.Keywords {
		if e.Keyword == kw {
			return Subscription{}, newError("add", kw, limit, ErrDuplicateKeyword)
		}
	}

	var floor time.Time
	if n := len(rec.Keywords); n > 0 {
		floor = rec.Keywords[n-1].AddedAt
	}
	e := entry{Keyword: kw, AddedAt: r.tick(floor)}
	rec.OwnerID = owner.ID
	if strings.TrimSpace(owner.DisplayName) != "" {
		rec.OwnerName = owner.DisplayName
	}
	rec.Keywords = append(rec.Keywords, e)
	if err := r.save(ctx, rec); err != nil {
		return Subscription{}, err
	}

	r.log.Debug("keyword added",
		logx.Int64("owner_id", owner.ID),
		logx.String("keyword", kw),
		logx.Int("count", len(rec.Keywords)),
	)
	return Subscription{OwnerID: rec.OwnerID, OwnerName: rec.OwnerName, Keyword: kw, AddedAt: e.AddedAt}, nil
}

// Remove deletes the owner's subscription whose keyword equals raw after
// normalization.
func (r *Registry) Remove(ctx context.Context, ownerID int64, raw string) error {
	kw := Normalize(raw)
	if kw == "" {
		return newError("remove", "", 0, ErrEmptyKeyword)
	}

	unlock := r.locks.lock(ownerID)
	defer unlock()

	rec, err := r.load(ctx, ownerID)
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range rec.Keywords {
		if e.Keyword == kw {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError("remove", kw, 0, ErrKeywordNotFound)
	}
	rec.Keywords = append(rec.Keywords[:idx], rec.Keywords[idx+1:]...)

	if len(rec.Keywords) == 0 {
		err = r.store.Delete(ctx, ownerKey(ownerID))
	} else {
		err = r.save(ctx, rec)
	}
	if err != nil {
		return err
	}
	r.log.Debug("keyword removed", logx.Int64("owner_id", ownerID), logx.String("keyword", kw))
	return nil
}

// List returns the owner's subscriptions in insertion order.
func (r *Registry) List(ctx context.Context, ownerID int64) ([]Subscription, error) {
	rec, err := r.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return rec.subscriptions(), nil
}

// All returns every subscription in insertion order across owners. Each
// owner's keywords come out in stored order; owners are interleaved by
// AddedAt, so a clock that stepped back between runs can shift owners
// against each other but never reorders one owner's keywords.
func (r *Registry) All(ctx context.Context) ([]Subscription, error) {
	var recs [][]Subscription
	err := r.store.Scan(ctx, keyPrefix, func(key string, val []byte) error {
		var rec record
		if err := json.Unmarshal(val, &rec); err != nil {
			r.log.Warn("skipping unreadable subscription record", logx.String("key", key), logx.Err(err))
			return nil
		}
		if subs := rec.subscriptions(); len(subs) > 0 {
			recs = append(recs, subs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan subscriptions: %w", err)
	}
	return mergeByAddedAt(recs), nil
}

// mergeByAddedAt merges per-owner lists, always taking the head with the
// earliest AddedAt (lower owner id on ties). Lists are consumed front to
// back and never reordered.
func mergeByAddedAt(lists [][]Subscription) []Subscription {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]Subscription, 0, total)
	for len(out) < total {
		best := -1
		for i, l := range lists {
			if len(l) == 0 {
				continue
			}
			if best < 0 || earlier(l[0], lists[best][0]) {
				best = i
			}
		}
		out = append(out, lists[best][0])
		lists[best] = lists[best][1:]
	}
	return out
}

func earlier(a, b Subscription) bool {
	if !a.AddedAt.Equal(b.AddedAt) {
		return a.AddedAt.Before(b.AddedAt)
	}
	return a.OwnerID < b.OwnerID
}

func (r *Registry) load(ctx context.Context, ownerID int64) (record, error) {
	b, ok, err := r.store.Get(ctx, ownerKey(ownerID))
	if err != nil {
		return record{}, fmt.Errorf("load subscriptions of %d: %w", ownerID, err)
	}
	if !ok {
		return record{OwnerID: ownerID}, nil
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return record{}, fmt.Errorf("decode subscriptions of %d: %w", ownerID, err)
	}
	rec.OwnerID = ownerID
	return rec, nil
}

func (r *Registry) save(ctx context.Context, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, ownerKey(rec.OwnerID), b); err != nil {
		return fmt.Errorf("save subscriptions of %d: %w", rec.OwnerID, err)
	}
	return nil
}

// tick hands out strictly increasing timestamps so insertion order
// survives coarse clocks. floor is the owner's newest stored entry, which
// keeps one owner's times increasing across restarts too.
func (r *Registry) tick(floor time.Time) time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	if !t.After(floor) {
		t = floor.Add(time.Nanosecond)
	}
	r.last = t
	return t
}

func (rec record) subscriptions() []Subscription {
	out := make([]Subscription, 0, len(rec.Keywords))
	for _, e := range rec.Keywords {
		out = append(out, Subscription{
			OwnerID:   rec.OwnerID,
			OwnerName: rec.OwnerName,
			Keyword:   e.Keyword,
			AddedAt:   e.AddedAt,
		})
	}
	return out
}

func ownerKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

type keyedMutex struct {
	mu sync.Mutex
	m  map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id int64) (unlock func()) {
	k.mu.Lock()
	e := k.m[id]
	if e == nil {
		e = &lockEntry{}
		k.m[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, id)
		}
		k.mu.Unlock()
	}
}
