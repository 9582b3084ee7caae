package gt06

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfleet/gt06d/config"
)

func testContext() context.Context {
	log := logrus.New()
	log.SetLevel(logrus.TraceLevel)
	cfg := config.NewConfig(log, nil, nil, nil, nil, nil, nil, nil, nil)
	return context.WithValue(context.Background(), config.ContextConfigKey, cfg)
}

func TestSendCommandConnected(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	registry := NewRegistry()
	deviceSide, serverSide := net.Pipe()
	defer func() {
		_ = deviceSide.Close()
		_ = serverSide.Close()
	}()

	registry.Register("conn-1", serverSide, nil)
	registry.BindImei("conn-1", "123456789012345")

	received := make(chan []byte, 1)
	go func() {
		buffer := make([]byte, 1024)
		size, err := deviceSide.Read(buffer)
		if err != nil {
			t.Errorf("Failed to read command on device side. %v", err)
			return
		}
		received <- buffer[:size]
	}()

	dispatcher := NewDispatcher(ctx, &wg, registry, nil)

	err := dispatcher.SendCommand("123456789012345", CommandRelayOff)
	if err != nil {
		t.Fatalf("Failed to send command. %v", err)
	}

	select {
	case frame := <-received:
		decoder := NewFrameDecoder()
		messages, errs := decoder.Feed(frame)
		if len(errs) != 0 {
			t.Errorf("Device received a malformed frame: %v", errs)
		}
		// the command frame is server to device, the decoder reports it as unknown
		if len(messages) != 1 || messages[0].Kind != KindUnknown {
			t.Errorf("Unexpected decode result: %+v", messages)
		}
	case <-time.After(time.Second):
		t.Errorf("Device did not receive the command")
	}
}

func TestSendCommandUnknown(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	dispatcher := NewDispatcher(ctx, &wg, NewRegistry(), nil)

	err := dispatcher.SendCommand("123456789012345", "reboot")
	if err == nil {
		t.Errorf("Expected error for unknown command")
	}
}

func TestSendCommandOfflineExhaustsBudget(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	dispatcher := NewDispatcher(ctx, &wg, NewRegistry(), nil)
	dispatcher.SetRetryPolicy(2, time.Millisecond, time.Millisecond)

	start := time.Now()
	err := dispatcher.SendCommand("123456789012345", CommandRelayOn)
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Errorf("Expected reconnection budget to be exhausted, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Bounded wait took too long: %v", time.Since(start))
	}

	// the budget is shared, a second burst must fail immediately
	err = dispatcher.SendCommand("123456789012345", CommandRelayOn)
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Errorf("Expected exhausted budget to persist, got %v", err)
	}
}

func TestSendCommandAfterReconnect(t *testing.T) {
	ctx := testContext()
	var wg sync.WaitGroup

	registry := NewRegistry()
	dispatcher := NewDispatcher(ctx, &wg, registry, nil)
	dispatcher.SetRetryPolicy(5, time.Millisecond, 20*time.Millisecond)

	deviceSide, serverSide := net.Pipe()
	defer func() {
		_ = deviceSide.Close()
		_ = serverSide.Close()
	}()

	// drain whatever the dispatcher writes once the device is back
	go func() {
		buffer := make([]byte, 1024)
		for {
			_, err := deviceSide.Read(buffer)
			if err != nil {
				return
			}
		}
	}()

	// device comes back while the dispatcher is waiting
	go func() {
		time.Sleep(10 * time.Millisecond)
		registry.Register("conn-1", serverSide, nil)
		registry.BindImei("conn-1", "123456789012345")
	}()

	err := dispatcher.SendCommand("123456789012345", CommandRelayOn)
	if err != nil {
		t.Errorf("Expected delivery after reconnect, got %v", err)
	}
}
