package identity

import "sync"

// Notifier is the change-notification stream shared by the providers.
//
// Listeners are called synchronously, in subscription order, on the goroutine
// that calls Notify. Notify takes a snapshot first, so a listener may
// unsubscribe (itself or another) without deadlocking.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []subscription
}

type subscription struct {
	id       uint64
	listener Listener
}

// Subscribe registers listener and returns a function that removes it.
// The returned function may be called any number of times.
func (n *Notifier) Subscribe(listener Listener) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, subscription{id: id, listener: listener})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.listeners {
		if s.id == id {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

// Notify delivers event to every current listener.
func (n *Notifier) Notify(event Event, session *Session) {
	n.mu.Lock()
	snapshot := make([]subscription, len(n.listeners))
	copy(snapshot, n.listeners)
	n.mu.Unlock()

	for _, s := range snapshot {
		s.listener(event, session)
	}
}

// Len reports the number of active listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
