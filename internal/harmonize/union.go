package harmonize

import "time"

// union collects records of one kind across files. A later record with the
// same key replaces the earlier one in place and counts as a conflict.
type union[T any] struct {
	order     []string
	items     map[string]T
	conflicts int
}

func newUnion[T any]() *union[T] {
	return &union[T]{items: make(map[string]T)}
}

func (u *union[T]) put(key string, item T) {
	if _, exists := u.items[key]; exists {
		u.conflicts++
	} else {
		u.order = append(u.order, key)
	}
	u.items[key] = item
}

func (u *union[T]) values() []T {
	out := make([]T, 0, len(u.order))
	for _, key := range u.order {
		out = append(out, u.items[key])
	}
	return out
}

func dateKey(id string, t time.Time) string {
	if t.IsZero() {
		return id + "|"
	}
	return id + "|" + t.Format("2006-01-02")
}
