package broker

// Handler consumes a message delivered on a subscribed topic.
type Handler func(topic string, payload []byte)

// Broker is the pub/sub transport boundary. Implementations deliver
// messages for a subscription in arrival order; no ordering is guaranteed
// across topics. All publishes and subscribes are at-least-once.
type Broker interface {
	Connect() error
	Disconnect()

	Subscribe(topic string, h Handler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, payload []byte) error
}
