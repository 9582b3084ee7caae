package gt06

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

func startTestServer(t *testing.T, ctx context.Context, wg *sync.WaitGroup, arrived chan TrackerMessage, disconnected chan string) *Server {
	t.Helper()

	registry := NewRegistry()
	server := NewServer(ctx, wg, "127.0.0.1", 0, registry, nil,
		func(_ context.Context, message TrackerMessage) {
			arrived <- message
		},
		func(_ context.Context, imei string, _ string) {
			disconnected <- imei
		})

	err := server.Start()
	if err != nil {
		t.Fatalf("Failed to start tracker server. %v", err)
	}

	return server
}

func recvAck(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	err := conn.SetReadDeadline(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Failed to set read deadline. %v", err)
	}

	buffer := make([]byte, 1024)
	size, err := conn.Read(buffer)
	if err != nil {
		t.Fatalf("Failed to read ack. %v", err)
	}
	return buffer[:size]
}

func TestServerSession(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	arrived := make(chan TrackerMessage, 16)
	disconnected := make(chan string, 1)

	server := startTestServer(t, ctx, &wg, arrived, disconnected)
	defer func() {
		err := server.Stop()
		if err != nil {
			t.Errorf("Failed to stop tracker server. %v", err)
		}
	}()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed. %v", err)
	}

	// login binds the session identity and is acked
	_, err = conn.Write(buildLoginFrame(0x0001))
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}

	ack := recvAck(t, conn)
	if !bytes.Equal(ack, BuildAck(protoLogin, 0x0001)) {
		t.Errorf("Wrong login ack: %x", ack)
	}

	select {
	case message := <-arrived:
		if message.Message.Kind != KindLogin {
			t.Errorf("Expected login message, got %v", message.Message.Kind)
		}
		if message.Imei != "123456789012345" {
			t.Errorf("Wrong IMEI: %s", message.Imei)
		}
	case <-time.After(time.Second):
		t.Fatalf("Login message did not arrive")
	}

	if !server.GetRegistry().IsOnline("123456789012345") {
		t.Errorf("Device must be online after login")
	}

	// a status frame inherits the session identity and is acked too
	_, err = conn.Write(buildStatusFrame(0x0002))
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}

	ack = recvAck(t, conn)
	if !bytes.Equal(ack, BuildAck(protoStatus, 0x0002)) {
		t.Errorf("Wrong status ack: %x", ack)
	}

	select {
	case message := <-arrived:
		if message.Message.Kind != KindStatus {
			t.Errorf("Expected status message, got %v", message.Message.Kind)
		}
		if message.Imei != "123456789012345" {
			t.Errorf("Session identity was not inherited: %s", message.Imei)
		}
	case <-time.After(time.Second):
		t.Fatalf("Status message did not arrive")
	}

	// closing the socket tears the session down and reports the bound IMEI
	err = conn.Close()
	if err != nil {
		t.Fatalf("Failed to close connection. %v", err)
	}

	select {
	case imei := <-disconnected:
		if imei != "123456789012345" {
			t.Errorf("Wrong IMEI on disconnect: %s", imei)
		}
	case <-time.After(time.Second):
		t.Fatalf("Disconnect callback did not fire")
	}

	deadline := time.Now().Add(time.Second)
	for server.GetRegistry().IsOnline("123456789012345") {
		if time.Now().After(deadline) {
			t.Fatalf("Device still online after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerSessionWithoutLogin(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	arrived := make(chan TrackerMessage, 16)
	disconnected := make(chan string, 1)

	server := startTestServer(t, ctx, &wg, arrived, disconnected)
	defer func() {
		err := server.Stop()
		if err != nil {
			t.Errorf("Failed to stop tracker server. %v", err)
		}
	}()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed. %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// telemetry on a session which never logged in is forwarded unresolved
	_, err = conn.Write(buildStatusFrame(0x0001))
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}

	select {
	case message := <-arrived:
		if message.Imei != UnknownImei {
			t.Errorf("Expected unresolved identity, got %s", message.Imei)
		}
	case <-time.After(time.Second):
		t.Fatalf("Status message did not arrive")
	}
}

func TestServerSurvivesMalformedData(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	arrived := make(chan TrackerMessage, 16)
	disconnected := make(chan string, 1)

	server := startTestServer(t, ctx, &wg, arrived, disconnected)
	defer func() {
		err := server.Stop()
		if err != nil {
			t.Errorf("Failed to stop tracker server. %v", err)
		}
	}()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed. %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// garbage first, then a valid frame on the same connection
	_, err = conn.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}
	_, err = conn.Write(buildLoginFrame(0x0001))
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}

	select {
	case message := <-arrived:
		if message.Message.Kind != KindLogin {
			t.Errorf("Expected login message, got %v", message.Message.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("Login message did not arrive after malformed data")
	}
}
