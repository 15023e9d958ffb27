package connectivity

import "sync"

// Event is an edge in connectivity.
type Event int

const (
	WentOffline Event = iota
	WentOnline
)

func (e Event) String() string {
	if e == WentOnline {
		return "online"
	}
	return "offline"
}

type Listener func(Event)

// Signal reports current connectivity and its edges.
type Signal interface {
	Online() bool
	Subscribe(listener Listener) (detach func())
}

var _ Signal = (*Monitor)(nil)

// Monitor is a settable connectivity flag. Listeners are called synchronously from Set,
// only when the value actually changes, and in the order changes happened.
type Monitor struct {
	lock   sync.RWMutex
	online bool

	notifyLock     sync.Mutex
	listenersLock  sync.Mutex
	listeners      map[uint64]Listener
	nextListenerID uint64
}

// NewMonitor creates a monitor in the given state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:    online,
		listeners: make(map[uint64]Listener),
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.online
}

// Set records the current connectivity and reports whether it changed.
func (m *Monitor) Set(online bool) bool {
	m.notifyLock.Lock()
	defer m.notifyLock.Unlock()

	m.lock.Lock()
	changed := m.online != online
	m.online = online
	m.lock.Unlock()

	if !changed {
		return false
	}

	event := WentOffline
	if online {
		event = WentOnline
	}

	m.listenersLock.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersLock.Unlock()

	for _, l := range listeners {
		l(event)
	}
	return true
}

// Subscribe registers listener for state edges. The returned func detaches it.
func (m *Monitor) Subscribe(listener Listener) (detach func()) {
	m.listenersLock.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = listener
	m.listenersLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersLock.Lock()
			delete(m.listeners, id)
			m.listenersLock.Unlock()
		})
	}
}
