package mqtt

// Publisher delivers notification payloads to a broker topic.
type Publisher interface {
	// Publish sends payload to topic. Implementations retry transient
	// failures before returning an error.
	Publish(topic string, qos byte, retained bool, payload []byte) error
}
