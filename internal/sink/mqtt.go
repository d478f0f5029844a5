package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/sdmmcspi"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	// Addr is the broker host:port.
	Addr     string
	Topic    string
	ClientID string
	// Timeout bounds dialing and the CONNECT handshake.
	Timeout time.Duration
	Logger  *slog.Logger
}

// MQTT publishes every frame as a Format line with QoS0.
type MQTT struct {
	client *mqtt.Client
	flags  mqtt.PacketFlags
	vars   mqtt.VariablesPublish
	buf    []byte
	logger *slog.Logger
}

// DialMQTT connects to the broker and completes the MQTT handshake.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sdanalyze"
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	return NewMQTT(ctx, conn, cfg)
}

// NewMQTT performs the MQTT handshake over an established connection.
func NewMQTT(ctx context.Context, conn io.ReadWriteCloser, cfg MQTTConfig) (*MQTT, error) {
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			return nil // We never subscribe.
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(cfg.ClientID))
	if err := client.Connect(ctx, conn, &varconn); err != nil {
		conn.Close()
		return nil, err
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m := &MQTT{
		client: client,
		flags:  flags,
		vars:   mqtt.VariablesPublish{TopicName: []byte(cfg.Topic)},
		logger: cfg.Logger,
	}
	if m.logger != nil {
		m.logger.Info("mqtt:connected", slog.String("addr", cfg.Addr), slog.String("topic", cfg.Topic))
	}
	return m, nil
}

func (m *MQTT) Emit(frame sdmmcspi.Frame) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}
	m.buf = AppendFormat(m.buf[:0], frame)
	m.vars.PacketIdentifier++
	return m.client.PublishPayload(m.flags, m.vars, m.buf)
}

// Close sends DISCONNECT and closes the connection.
func (m *MQTT) Close() error {
	if !m.client.IsConnected() {
		return nil
	}
	err := m.client.Disconnect(errors.New("sdanalyze: done"))
	if m.logger != nil {
		m.logger.Info("mqtt:disconnected", slog.Any("err", err))
	}
	return err
}
