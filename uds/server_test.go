package uds

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/gt06"
)

func testContext() context.Context {
	log := logrus.New()
	log.SetLevel(logrus.TraceLevel)
	cfg := config.NewConfig(log, nil, nil, nil, nil, nil, nil, nil, nil)
	return context.WithValue(context.Background(), config.ContextConfigKey, cfg)
}

func startTestConsole(t *testing.T) (*Server, net.Conn) {
	t.Helper()

	ctx := testContext()
	var wg sync.WaitGroup

	dispatcher := gt06.NewDispatcher(ctx, &wg, gt06.NewRegistry(), nil)
	dispatcher.SetRetryPolicy(1, time.Millisecond, time.Millisecond)

	socketPath := filepath.Join(t.TempDir(), "gt06d.sock")
	server := NewUdsServer(ctx, socketPath, dispatcher)

	err := server.Start()
	if err != nil {
		t.Fatalf("Failed to start UDS server. %v", err)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial failed. %v", err)
	}

	return server, conn
}

func sendLine(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) string {
	t.Helper()

	_, err := conn.Write([]byte(line + "\n"))
	if err != nil {
		t.Fatalf("Write to server failed. %v", err)
	}

	err = conn.SetReadDeadline(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Failed to set read deadline. %v", err)
	}

	response, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read response. %v", err)
	}
	return strings.TrimSpace(response)
}

func TestAdminConsole(t *testing.T) {
	server, conn := startTestConsole(t)
	defer func() {
		err := conn.Close()
		if err != nil {
			t.Errorf("Failed to close connection. %v", err)
		}
		err = server.Stop()
		if err != nil {
			t.Errorf("Failed to stop UDS server. %v", err)
		}
	}()

	reader := bufio.NewReader(conn)

	testCases := []struct {
		Name           string
		Line           string
		ExpectedPrefix string
	}{
		{
			Name:           "MalformedLine",
			Line:           "relay-on",
			ExpectedPrefix: "ERR expected",
		},
		{
			Name:           "UnknownCommand",
			Line:           "123456789012345 reboot",
			ExpectedPrefix: "ERR unknown command",
		},
		{
			Name:           "OfflineDevice",
			Line:           "123456789012345 relay-on",
			ExpectedPrefix: "ERR",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(test *testing.T) {
			response := sendLine(t, conn, reader, testCase.Line)
			if !strings.HasPrefix(response, testCase.ExpectedPrefix) {
				test.Errorf("Wrong response! Expected prefix: %s Actual: %s", testCase.ExpectedPrefix, response)
			}
		})
	}
}
