package notify

import (
	"context"
	"sync"
)

// Outbox records every notification in memory.
type Outbox struct {
	sender

	mu   sync.Mutex
	msgs []Message
	err  error
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	o := &Outbox{}
	o.sender = o.record
	return o
}

func (o *Outbox) record(ctx context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.msgs = append(o.msgs, m)
	return nil
}

// FailWith makes every following send return err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Messages returns a copy of everything delivered so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.msgs...)
}

// Last returns the most recent message of kind sent to email.
func (o *Outbox) Last(kind Kind, email string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind == kind && o.msgs[i].To.Email == email {
			return o.msgs[i], true
		}
	}
	return Message{}, false
}

// Count returns how many messages of kind were delivered.
func (o *Outbox) Count(kind Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops all recorded messages.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.msgs = nil
	o.mu.Unlock()
}
