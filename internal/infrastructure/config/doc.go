// Package config loads mqtt-journal settings.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables. The broker variables (MQTT_HOST, MQTT_PORT,
// MQTT_TOPIC, MQTT_USERNAME, MQTT_PASSWORD, ...) match the original client
// scripts; everything else uses MQTTJOURNAL_<SECTION>_<KEY>.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//
// Keep broker passwords and the InfluxDB token in the environment rather
// than in a world-readable file.
package config
