package client

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

// echoServer accepts one connection at a time and echoes every line it
// receives back verbatim, closing when told to via done.
func echoServer(t *testing.T, sock string) (accepted chan net.Conn, stop func()) {
	t.Helper()
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	accepted = make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
			go func(c net.Conn) {
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadBytes('\n')
					if len(line) > 0 {
						c.Write(line)
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return accepted, func() { ln.Close() }
}

func TestConnectionEmitAndReceive(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	accepted, stop := echoServer(t, sock)
	defer stop()

	onConnect := make(chan struct{}, 1)
	received := make(chan map[string]any, 1)
	c := New(sock, nil)
	c.OnConnect = func() { onConnect <- struct{}{} }
	c.OnMessage = func(msg map[string]any) { received <- msg }
	c.Start()
	defer c.Stop()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
	}
	select {
	case <-onConnect:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect never fired")
	}

	if ok := c.Emit(map[string]any{"type": "lode_register", "lode_id": "abcd2345"}); !ok {
		t.Fatal("Emit returned false")
	}

	select {
	case msg := <-received:
		if msg["type"] != "lode_register" {
			t.Fatalf("got %v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received echoed message")
	}
}

func TestEmitReturnsFalseWhenQueueFull(t *testing.T) {
	c := &Connection{queue: make(chan []byte, 1)}
	if ok := c.Emit(map[string]any{"type": "x"}); !ok {
		t.Fatal("first emit should succeed")
	}
	if ok := c.Emit(map[string]any{"type": "y"}); ok {
		t.Fatal("second emit into a full queue should return false")
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var req map[string]any
		json.Unmarshal(line, &req)
		resp, _ := json.Marshal(map[string]any{"type": "pong"})
		conn.Write(append(resp, '\n'))
	}()

	if err := Ping(sock); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
