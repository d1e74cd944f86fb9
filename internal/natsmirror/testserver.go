package natsmirror

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps an in-process NATS server, adapted from the
// teacher's internal/nats/server.go for use in bus integration tests
// without requiring a standalone nats-server process.
type EmbeddedServer struct {
	srv *server.Server
}

// StartEmbedded boots an embedded NATS server on an ephemeral port,
// matching the teacher's EmbeddedServerConfig defaults (JetStream off).
func StartEmbedded() (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       -1, // ephemeral port
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("natsmirror: start embedded server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("natsmirror: embedded server not ready")
	}
	return &EmbeddedServer{srv: ns}, nil
}

// URL returns the client connect URL for the embedded server.
func (e *EmbeddedServer) URL() string { return e.srv.ClientURL() }

// Shutdown stops the embedded server.
func (e *EmbeddedServer) Shutdown() { e.srv.Shutdown() }
