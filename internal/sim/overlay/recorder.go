package overlay

import "sync"

// Recorder is a Sink that keeps every command it receives. It backs the
// one-shot CLI and tests.
type Recorder struct {
	mu   sync.Mutex
	cmds []Command
}

// Send implements Sink.
func (r *Recorder) Send(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
}

// Commands returns a copy of the recorded commands in emission order.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

// Count returns how many commands matched op and kind.
func (r *Recorder) Count(op Op, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cmds {
		if c.Op == op && c.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = nil
}
