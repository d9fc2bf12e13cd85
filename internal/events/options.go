package events

type ProducerOptions func(ep *EventProducer)

// WithOutputTopic overrides the topic messages are written to.
func WithOutputTopic(topic string) ProducerOptions {
	return func(ep *EventProducer) {
		ep.topic = topic
	}
}
