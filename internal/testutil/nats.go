package testutil

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// NATSServer wraps an embedded NATS server with JetStream for tests.
type NATSServer struct {
	Server *server.Server
	URL    string
}

// MustStartNATS starts an embedded NATS server with JetStream on a random
// port. Calls os.Exit(1) on failure (suitable for TestMain).
func MustStartNATS(t interface{ TempDir() string }) *NATSServer {
	opts := &server.Options{
		ServerName: "ledger-test",
		Host:       "127.0.0.1",
		Port:       -1,
		JetStream:  true,
		StoreDir:   t.TempDir(),
		NoLog:      true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to create nats server: %v\n", err)
		os.Exit(1)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		fmt.Fprintf(os.Stderr, "testutil: nats server not ready within 10s\n")
		os.Exit(1)
	}

	return &NATSServer{Server: ns, URL: ns.ClientURL()}
}

// Shutdown stops the server and waits for completion.
func (n *NATSServer) Shutdown() {
	n.Server.Shutdown()
	n.Server.WaitForShutdown()
}
