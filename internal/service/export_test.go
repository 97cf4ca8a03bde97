package service

// Actors returns the number of live requester actors.
func (d *Dispatcher) Actors() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.actors)
}
