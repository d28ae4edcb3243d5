package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gallery.
const (
	MeasurementLogin = "auth_login"
	MeasurementAudit = "audit_event"
)

// Login outcomes. Usernames are never written; the tag set stays low-cardinality.
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
)

// RecordLoginAttempt writes one login outcome. Non-blocking.
func (c *Client) RecordLoginAttempt(outcome string) {
	c.write(loginPoint(outcome, time.Now()))
}

// RecordAuditEvent writes one committed audit action. Non-blocking.
func (c *Client) RecordAuditEvent(action string) {
	c.write(auditPoint(action, time.Now()))
}

func loginPoint(outcome string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLogin,
		map[string]string{"outcome": outcome},
		map[string]any{"count": 1},
		at,
	)
}

func auditPoint(action string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAudit,
		map[string]string{"action": action},
		map[string]any{"count": 1},
		at,
	)
}
