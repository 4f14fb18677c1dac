// Package influxdb writes message-rate metrics to InfluxDB 2.x.
//
// A Client is a session observer: every arrival becomes a point in the
// mqtt_messages measurement, tagged by topic, qos, retain and the MQTT
// client id. The monitor command also writes periodic mqtt_session points
// with the session counters.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.MQTT.Broker.ClientID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sess.AddObserver(client)
//
// Writes never return errors. Rejected batches are counted in Stats and
// reported through SetOnError.
package influxdb
