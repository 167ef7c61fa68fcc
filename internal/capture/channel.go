// Package capture reconciles extraction results delivered over racing
// channels into a single draft expense.
package capture

// ChannelName identifies a delivery channel. Reconciler priority follows
// the order of the channels it is given.
type ChannelName string

const (
	NativeBridge ChannelName = "native-bridge"
	OCRResult    ChannelName = "ocr-result"
	SharedImage  ChannelName = "shared-image"
)

// Delivery is a payload read from a channel
type Delivery struct {
	Channel ChannelName
	Payload []byte
}

// Channel is a write-once, read-once source of a capture payload
type Channel interface {
	Name() ChannelName

	// TryReceive returns and removes the pending payload, if any
	TryReceive() (Delivery, bool, error)

	// Clear discards any pending payload
	Clear() error
}

// Notifier is implemented by channels that can signal a write. Callers
// must call release once they stop listening.
type Notifier interface {
	Notify() (signal <-chan struct{}, release func())
}

type slotChannel struct {
	name  ChannelName
	slots Slots
	scope string
	key   string
}

func (c *slotChannel) Name() ChannelName { return c.name }

func (c *slotChannel) TryReceive() (Delivery, bool, error) {
	data, ok, err := c.slots.Take(c.scope, c.key)
	if err != nil || !ok {
		return Delivery{}, false, err
	}
	return Delivery{Channel: c.name, Payload: data}, true, nil
}

func (c *slotChannel) Clear() error {
	return c.slots.Delete(c.scope, c.key)
}
