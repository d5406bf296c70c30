package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Timeline is the price history of one (client, container) pair ordered by
// EffectiveFrom ascending. Effective dates are strictly increasing.
type Timeline struct {
	entries []PriceEntry
}

func NewTimeline(entries []PriceEntry) *Timeline {
	sorted := append([]PriceEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveFrom.Before(sorted[j].EffectiveFrom)
	})
	return &Timeline{entries: sorted}
}

func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the history, oldest first.
func (t *Timeline) Entries() []PriceEntry {
	if t == nil {
		return nil
	}
	return append([]PriceEntry(nil), t.entries...)
}

// At returns the entry with the greatest EffectiveFrom not after at.
func (t *Timeline) At(at time.Time) (PriceEntry, bool) {
	if t.Len() == 0 {
		return PriceEntry{}, false
	}
	idx := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].EffectiveFrom.After(at)
	})
	if idx == 0 {
		return PriceEntry{}, false
	}
	return t.entries[idx-1], true
}

func (t *Timeline) Latest() (PriceEntry, bool) {
	if t.Len() == 0 {
		return PriceEntry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// CanAppend checks that an entry effective at effectiveFrom keeps the timeline
// strictly increasing. Exact collisions are reported before backdating.
func (t *Timeline) CanAppend(effectiveFrom time.Time) error {
	if t.Len() == 0 {
		return nil
	}
	idx := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].EffectiveFrom.Before(effectiveFrom)
	})
	if idx < len(t.entries) && t.entries[idx].EffectiveFrom.Equal(effectiveFrom) {
		return fmt.Errorf("%w: %s", ErrDuplicateEffectiveDate, effectiveFrom.Format(time.RFC3339Nano))
	}
	latest, _ := t.Latest()
	if !effectiveFrom.After(latest.EffectiveFrom) {
		return fmt.Errorf("%w: %s is not after %s", ErrBackdated,
			effectiveFrom.Format(time.RFC3339Nano),
			latest.EffectiveFrom.Format(time.RFC3339Nano),
		)
	}
	return nil
}

func (t *Timeline) Append(entry PriceEntry) error {
	if err := t.CanAppend(entry.EffectiveFrom); err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	return nil
}

// PriceBook holds every timeline of one client, loaded at a single point in a transaction.
type PriceBook map[Key]*Timeline

func NewPriceBook(entries []PriceEntry) PriceBook {
	grouped := map[Key][]PriceEntry{}
	for _, e := range entries {
		grouped[e.Key()] = append(grouped[e.Key()], e)
	}
	book := make(PriceBook, len(grouped))
	for key, items := range grouped {
		book[key] = NewTimeline(items)
	}
	return book
}

// Resolve returns the price in force for the pair at at.
func (b PriceBook) Resolve(clientID, containerID snowflake.ID, at time.Time) (PriceEntry, error) {
	timeline := b[Key{ClientID: clientID, ContainerID: containerID}]
	entry, ok := timeline.At(at)
	if !ok {
		return PriceEntry{}, fmt.Errorf("%w: client %s container %s", ErrPriceNotSet, clientID, containerID)
	}
	return entry, nil
}

// HasHistory reports whether the pair has ever been priced.
func (b PriceBook) HasHistory(clientID, containerID snowflake.ID) bool {
	return b[Key{ClientID: clientID, ContainerID: containerID}].Len() > 0
}

// LoadPriceBook reads all price entries of a client through db.
func LoadPriceBook(ctx context.Context, db *gorm.DB, repo Repository, clientID snowflake.ID) (PriceBook, error) {
	entries, err := repo.ListByClient(ctx, db, clientID)
	if err != nil {
		return nil, err
	}
	return NewPriceBook(entries), nil
}
