package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "gallery-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MQTTBrokerConfig
		want string
	}{
		{name: "plain", cfg: config.MQTTBrokerConfig{Host: "localhost", Port: 1883}, want: "tcp://localhost:1883"},
		{name: "tls", cfg: config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true}, want: "ssl://broker:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := brokerURL(tt.cfg); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "gallery", Password: "secret"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if opts.ClientID != "gallery-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "gallery-test")
	}
	if opts.Username != "gallery" {
		t.Errorf("Username = %q, want %q", opts.Username, "gallery")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below TLS 1.2")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Scheme != "ssl" {
		t.Errorf("Servers = %v, want one ssl broker", opts.Servers)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "gallery-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "gallery/system/status" {
		t.Errorf("WillTopic = %q, want gallery/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}

	var msg statusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("LWT payload not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "unexpected_disconnect" {
		t.Errorf("LWT payload = %+v, want offline/unexpected_disconnect", msg)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusMessage
	if err := json.Unmarshal([]byte(buildOnlinePayload("c1")), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if err := json.Unmarshal([]byte(buildOfflinePayload("c1")), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}

	if online.Status != "online" || online.ClientID != "c1" || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
	if strings.Contains(buildOnlinePayload("c1"), "reason") {
		t.Error("online payload should omit reason")
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	if got := topics.AuditEvent("user_created"); got != "gallery/audit/user_created" {
		t.Errorf("AuditEvent() = %q", got)
	}
	if got := topics.AllAuditEvents(); got != "gallery/audit/+" {
		t.Errorf("AllAuditEvents() = %q", got)
	}
	if got := topics.SystemStatus(); got != "gallery/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestValidatePublish(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "valid", topic: "gallery/audit/x", payload: []byte("{}"), qos: 1},
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "bad qos", topic: "t", qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized", topic: "t", payload: make([]byte, maxPayloadSize+1), qos: 0, wantErr: ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePublish(tt.topic, tt.payload, tt.qos)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validatePublish() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validatePublish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisconnectedClient(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishEvent("gallery/audit/x", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishEvent() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{cfg: testConfig()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}
