package fanout

import (
	"sort"

	"github.com/samber/lo"
)

// Recipients is a set of user ids. It is the only place recipient lists are
// de-duplicated, so a user never receives the same event twice from one Deliver.
type Recipients struct {
	set map[string]struct{}
}

// NewRecipients builds a set from ids, skipping empty ids.
func NewRecipients(ids ...string) Recipients {
	r := Recipients{set: make(map[string]struct{}, len(ids))}
	return r.Add(ids...)
}

// Add inserts ids into the set and returns it.
func (r Recipients) Add(ids ...string) Recipients {
	if r.set == nil {
		r.set = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		if id != "" {
			r.set[id] = struct{}{}
		}
	}
	return r
}

// Without returns a copy of the set minus ids.
func (r Recipients) Without(ids ...string) Recipients {
	out := NewRecipients(lo.Keys(r.set)...)
	for _, id := range ids {
		delete(out.set, id)
	}
	return out
}

// Contains reports membership.
func (r Recipients) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

func (r Recipients) Len() int {
	return len(r.set)
}

// Members returns the ids in sorted order.
func (r Recipients) Members() []string {
	out := lo.Keys(r.set)
	sort.Strings(out)
	return out
}
