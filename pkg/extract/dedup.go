package extract

// Deduper remembers the keys it has seen. It is not safe for concurrent use;
// a job's deduper is only ever touched by the worker running that job.
type Deduper struct {
	seen map[Key]struct{}
}

// NewDeduper creates an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[Key]struct{})}
}

// Add records r and reports whether its key was new.
func (d *Deduper) Add(r Record) bool {
	k := r.Key()
	if _, ok := d.seen[k]; ok {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}

// Len returns the number of distinct keys seen.
func (d *Deduper) Len() int {
	return len(d.seen)
}
