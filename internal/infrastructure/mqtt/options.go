package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultPublishTimeout bounds every publish, subscribe and
	// unsubscribe acknowledgement wait.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// orDefault converts a config value in seconds, falling back to def when
// the value is not positive.
func orDefault(secs int, def time.Duration) time.Duration {
	if secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// buildClientOptions translates the mqtt config section into paho options.
//
// The session always starts clean and the first connect is attempted once;
// a refusal or timeout goes straight back to the caller. Automatic
// reconnects after a drop only happen when mqtt.reconnect.enabled is set.
//
// Returns:
//   - error: ErrTLSConfig when TLS is on and the files cannot be used
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetConnectRetry(false).
		SetConnectTimeout(orDefault(cfg.ConnectTimeout, defaultConnectTimeout)).
		SetKeepAlive(orDefault(cfg.Broker.KeepAlive, defaultKeepAlive)).
		SetAutoReconnect(cfg.Reconnect.Enabled)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}

	if cfg.Reconnect.Enabled {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	if cfg.Broker.TLS {
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// buildTLSConfig loads the optional CA bundle and client key pair. Without
// a CA file the system roots are trusted.
func buildTLSConfig(cfg config.MQTTTLSConfig) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tlsMinVersion,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit opt-in for self-signed test brokers
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTLSConfig, err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s contains no PEM certificates", ErrTLSConfig, cfg.CAFile)
		}
		out.RootCAs = roots
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: client certificate: %w", ErrTLSConfig, err)
		}
		out.Certificates = []tls.Certificate{pair}
	}
	return out, nil
}
