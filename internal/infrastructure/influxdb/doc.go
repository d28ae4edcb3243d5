// Package influxdb writes gallery security telemetry to InfluxDB.
//
// Two measurements are written, both as counters with a single low-cardinality tag:
//   - auth_login{outcome=success|failure|rate_limited}
//   - audit_event{action=<audit action>}
//
// Dashboards on these answer "is someone brute-forcing logins" and "how
// often are accounts and folders changing" without reading the audit table.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.RecordLoginAttempt(influxdb.LoginFailure)
//
// Writes are non-blocking and batched (batch_size, flush_interval); async
// write errors are delivered to the SetOnError callback.
package influxdb
