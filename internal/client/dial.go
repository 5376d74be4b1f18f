package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const requestTimeout = 2 * time.Second

// SendMessage performs a single request/response round trip: dial,
// write one message, read one reply line, close. Used by one-shot CLI
// commands (ping, lode create, backlog add, ...) that don't need a
// persistent connection.
func SendMessage(socketPath string, fields map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", socketPath, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("client: encoding request: %w", err)
	}
	conn.SetDeadline(time.Now().Add(requestTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("client: writing request: %w", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("client: reading reply: %w", err)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("client: decoding reply: %w", err)
	}
	return resp, nil
}

// SendFireAndForget performs a single one-way send with no reply wait,
// used for broadcast-only mutations (lode_set_* from a CLI command).
func SendFireAndForget(socketPath string, fields map[string]any) error {
	conn, err := net.DialTimeout("unix", socketPath, requestTimeout)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	defer conn.Close()
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("client: encoding request: %w", err)
	}
	conn.SetDeadline(time.Now().Add(requestTimeout))
	_, err = conn.Write(append(data, '\n'))
	return err
}

// Ping connects and expects a "pong" reply.
func Ping(socketPath string) error {
	resp, err := SendMessage(socketPath, map[string]any{"type": "ping"})
	if err != nil {
		return err
	}
	if resp["type"] != "pong" {
		return fmt.Errorf("client: ping got unexpected reply %v", resp)
	}
	return nil
}

// Connect performs the read-only handshake, optionally for a specific
// lode id.
func Connect(socketPath string, lodeID string) (map[string]any, error) {
	req := map[string]any{"type": "connect"}
	if lodeID != "" {
		req["lode_id"] = lodeID
	}
	return SendMessage(socketPath, req)
}
