package event

// index is a map that remembers first-insertion order. Replacing a key
// keeps its original position.
type index[T any] struct {
	keys []string
	m    map[string]*T
}

func newIndex[T any]() *index[T] {
	return &index[T]{m: make(map[string]*T)}
}

func (x *index[T]) put(key string, v *T) {
	if _, ok := x.m[key]; !ok {
		x.keys = append(x.keys, key)
	}
	x.m[key] = v
}

func (x *index[T]) get(key string) (*T, bool) {
	v, ok := x.m[key]
	return v, ok
}

func (x *index[T]) len() int { return len(x.m) }

func (x *index[T]) values() []*T {
	out := make([]*T, 0, len(x.keys))
	for _, k := range x.keys {
		out = append(out, x.m[k])
	}
	return out
}
