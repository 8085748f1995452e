package matching

// Pool is the FIFO waiting list. An id appears at most once.
type Pool struct {
	ids    []string
	member map[string]struct{}
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{member: make(map[string]struct{})}
}

// Push appends id to the back of the pool. It returns false if id is
// already waiting.
func (p *Pool) Push(id string) bool {
	if p.Contains(id) {
		return false
	}
	p.ids = append(p.ids, id)
	p.member[id] = struct{}{}
	return true
}

// Remove takes id out of the pool, keeping the order of the rest.
func (p *Pool) Remove(id string) bool {
	if !p.Contains(id) {
		return false
	}
	delete(p.member, id)
	for i, v := range p.ids {
		if v == id {
			p.ids = append(p.ids[:i], p.ids[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is waiting.
func (p *Pool) Contains(id string) bool {
	_, ok := p.member[id]
	return ok
}

// FirstOther returns the earliest queued entry that is not id.
func (p *Pool) FirstOther(id string) (string, bool) {
	for _, v := range p.ids {
		if v != id {
			return v, true
		}
	}
	return "", false
}

// Len returns the number of waiting clients.
func (p *Pool) Len() int {
	return len(p.ids)
}

// IDs returns a copy of the pool in queue order.
func (p *Pool) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}
