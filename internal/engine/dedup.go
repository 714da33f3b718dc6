package engine

// dedupSet remembers the last N keys seen. When full, admitting a new
// key evicts the oldest. Not safe for concurrent use; the engine calls
// it from the trade loop only.
type dedupSet struct {
	seen  map[string]struct{}
	order []string
	head  int
	cap   int
}

func newDedupSet(capacity int) *dedupSet {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupSet{
		seen:  make(map[string]struct{}, capacity),
		order: make([]string, capacity),
		cap:   capacity,
	}
}

// admit records key and reports whether it was new. Returns false for
// keys already in the window.
func (d *dedupSet) admit(key string) bool {
	if _, dup := d.seen[key]; dup {
		return false
	}

	if evicted := d.order[d.head]; evicted != "" {
		delete(d.seen, evicted)
	}
	d.order[d.head] = key
	d.head = (d.head + 1) % d.cap
	d.seen[key] = struct{}{}
	return true
}
