package media

import "time"

// SetOffset replaces the thumbnail offset picker.
func (p *Prober) SetOffset(fn func(d time.Duration) time.Duration) {
	p.offset = fn
}
