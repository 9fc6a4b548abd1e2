package round

// Pool maps unresolved landmark ids to their remaining attempts.
type Pool map[string]int

func newPool(ids []string, budget int) Pool {
	p := make(Pool, len(ids))
	for _, id := range ids {
		p[id] = budget
	}
	return p
}

// Has reports whether id is still unresolved.
func (p Pool) Has(id string) bool {
	_, ok := p[id]
	return ok
}

// Remaining returns the attempts left for id, 0 if absent.
func (p Pool) Remaining(id string) int {
	return p[id]
}

// decrement takes one attempt from id and returns what is left.
// An entry is never taken below zero.
func (p Pool) decrement(id string) int {
	n, ok := p[id]
	if !ok {
		return 0
	}
	if n > 0 {
		n--
	}
	p[id] = n
	return n
}

func (p Pool) evict(id string) {
	delete(p, id)
}
