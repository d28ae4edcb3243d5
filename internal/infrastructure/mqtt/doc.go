// Package mqtt provides the gallery's MQTT publisher.
//
// The gallery publishes every committed audit entry to gallery/audit/<action>
// so external tooling (alerting, home automation, log shippers) can react to
// account changes and uploads without polling the database. A retained
// status message on gallery/system/status, backed by a Last Will, tells
// subscribers whether the gallery is online.
//
// MQTT is optional. When mqtt.enabled is false the client is never created
// and audit fan-out is skipped.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(mqtt.Topics{}.AuditEvent("user_created"), payload)
package mqtt
