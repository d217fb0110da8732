package ssh

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

type Client interface {
	Connect(ctx context.Context, host Host) (Session, error)
	Close() error
}

type Host struct {
	Name    string
	Address string
	User    string
	KeyPath string
}

type client struct {
	mu          sync.Mutex
	connections map[string]*ssh.Client
}

func NewClient() Client {
	return &client{
		connections: make(map[string]*ssh.Client),
	}
}

func (c *client) Connect(ctx context.Context, host Host) (Session, error) {
	// Check if we already have a connection to this host
	key := fmt.Sprintf("%s@%s", host.User, host.Address)

	c.mu.Lock()
	conn, ok := c.connections[key]
	c.mu.Unlock()
	if ok {
		return newSession(conn, host)
	}

	// Read private key
	keyData, err := os.ReadFile(host.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", host.KeyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: host.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: Add host key verification
	}

	addr := host.Address
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	conn, err = ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// Store connection for reuse
	c.mu.Lock()
	c.connections[key] = conn
	c.mu.Unlock()

	return newSession(conn, host)
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, conn := range c.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.connections, key)
	}
	return firstErr
}
