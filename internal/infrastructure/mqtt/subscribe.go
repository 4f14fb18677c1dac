package mqtt

import "fmt"

// Subscribe asks the broker for messages matching filter and delivers them
// to handler. The subscription is remembered and sent again after every
// automatic reconnect, until Unsubscribe removes it.
//
// Subscribing again to the same filter replaces its QoS and handler.
//
// Example:
//
//	err := client.Subscribe("sensors/+/temperature", 1, func(m mqtt.Message) error {
//	    return store(m.Topic, m.Payload)
//	})
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}
	if err := checkQoS(qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Recorded before the SUBSCRIBE goes out so a reconnect racing with
	// the acknowledgement still restores it.
	c.remember(subscription{topic: filter, qos: qos, handler: handler})

	err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler)), ErrSubscribeFailed, defaultPublishTimeout)
	if err != nil {
		c.forget(filter)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for a filter previously passed to Subscribe.
// Messages already in flight may still reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(filter)
	return await(c.client.Unsubscribe(filter), ErrUnsubscribeFailed, defaultPublishTimeout)
}

// SubscriptionCount reports how many filters will be restored on reconnect.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether filter, compared as a literal string, is
// currently subscribed.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[filter]
	return ok
}

func (c *Client) remember(s subscription) {
	c.subMu.Lock()
	c.subscriptions[s.topic] = s
	c.subMu.Unlock()
}

func (c *Client) forget(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}
