package capture

import "sync"

// Bridge holds the payload pushed by the native host, one per scope.
type Bridge struct {
	mu       sync.Mutex
	payloads map[string][]byte
	watchers map[string]*watch
}

// watch is the wake-up signal shared by the reconcilers watching a scope
type watch struct {
	signal chan struct{}
	refs   int
}

func NewBridge() *Bridge {
	return &Bridge{
		payloads: make(map[string][]byte),
		watchers: make(map[string]*watch),
	}
}

// Publish stores the payload for scope, replacing any unread one, and wakes
// a reconciler watching that scope.
func (b *Bridge) Publish(scope string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.payloads[scope] = append([]byte(nil), payload...)
	if w, ok := b.watchers[scope]; ok {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}

// Channel returns the bridge channel for scope
func (b *Bridge) Channel(scope string) Channel {
	return &bridgeChannel{bridge: b, scope: scope}
}

func (b *Bridge) take(scope string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.payloads[scope]
	delete(b.payloads, scope)
	return data, ok
}

func (b *Bridge) clear(scope string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.payloads, scope)
	if w, ok := b.watchers[scope]; ok {
		select {
		case <-w.signal:
		default:
		}
	}
}

// watch registers interest in scope. The entry is dropped when the last
// watcher releases it.
func (b *Bridge) watch(scope string) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.watchers[scope]
	if !ok {
		w = &watch{signal: make(chan struct{}, 1)}
		b.watchers[scope] = w
	}
	w.refs++

	var once sync.Once
	return w.signal, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			w.refs--
			if w.refs == 0 && b.watchers[scope] == w {
				delete(b.watchers, scope)
			}
		})
	}
}

// scopes reports how many scopes hold a payload or a watcher
func (b *Bridge) scopes() (payloads, watchers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads), len(b.watchers)
}

type bridgeChannel struct {
	bridge *Bridge
	scope  string
}

func (c *bridgeChannel) Name() ChannelName { return NativeBridge }

func (c *bridgeChannel) TryReceive() (Delivery, bool, error) {
	data, ok := c.bridge.take(c.scope)
	if !ok {
		return Delivery{}, false, nil
	}
	return Delivery{Channel: NativeBridge, Payload: data}, true, nil
}

func (c *bridgeChannel) Clear() error {
	c.bridge.clear(c.scope)
	return nil
}

func (c *bridgeChannel) Notify() (<-chan struct{}, func()) {
	return c.bridge.watch(c.scope)
}
