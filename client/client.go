// Package client connects to the counseld daemon.
package client

import (
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
)

const (
	// DefaultSocketPath is the default Unix socket path for the daemon.
	DefaultSocketPath = "/tmp/counseld.sock"
)

// Client is the client for interacting with the counseld daemon.
type Client struct {
	conn *grpc.ClientConn

	Counsel counselv1.CounselClient
}

// Target converts an address to a gRPC dial target.
// The address can be:
//   - A Unix socket path (e.g., "/tmp/counseld.sock")
//   - A TCP address (e.g., "localhost:50051")
//
// If the address starts with "unix://", it will be treated as a Unix socket.
// Otherwise, if it contains ":" it will be treated as TCP, else Unix socket.
func Target(address string) string {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return address
	case strings.Contains(address, ":") && !strings.HasPrefix(address, "/"):
		return address
	default:
		return "unix://" + address
	}
}

// Connect connects to the counseld daemon at address. Extra dial options are
// appended after the defaults.
func Connect(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(Target(address), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", address, err)
	}

	return &Client{
		conn:    conn,
		Counsel: counselv1.NewCounselClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
