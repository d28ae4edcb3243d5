package mqtt

import "fmt"

const (
	// TopicPrefix is the root of every gallery topic.
	TopicPrefix = "gallery"

	TopicPrefixAudit  = TopicPrefix + "/audit"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for gallery MQTT topics.
//
//	topic := mqtt.Topics{}.AuditEvent("user_created")
//	// Returns: "gallery/audit/user_created"
type Topics struct{}

// AuditEvent returns the topic an audit action is published on.
func (Topics) AuditEvent(action string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAudit, action)
}

// AllAuditEvents matches every audit action.
func (Topics) AllAuditEvents() string {
	return TopicPrefixAudit + "/+"
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
