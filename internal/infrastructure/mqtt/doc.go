// Package mqtt is the transport adapter between mqtt-journal and the
// paho.mqtt.golang client.
//
// This package manages:
//   - Connection to the broker, reporting the CONNACK return code
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Optional automatic reconnection with subscription restore
//   - TLS from CA and client certificate files
//
// The adapter does not keep session state beyond what paho needs to restore
// subscriptions. Connection state, the subscribed topic set and message
// counting belong to the session package, which drives this client through
// its Transport interface.
//
// # Security Considerations
//
//   - Set broker.tls and the tls.* files for anything beyond a public test broker
//   - insecure_skip_verify disables certificate verification and exists for
//     self-signed test brokers only
//   - Credentials are sent only when a username is configured
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	if _, err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/#", 1, func(msg mqtt.Message) error {
//	    log.Printf("Received: %s = %s", msg.Topic, msg.Payload)
//	    return nil
//	})
package mqtt
