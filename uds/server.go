package uds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/gt06"
)

/*
Server is the local admin console of the daemon. It listens on a unix domain
socket and accepts one command per line:

	<IMEI> <COMMAND>\n

for example "0123456789012345 relay-off". The command goes through the same
dispatcher as the HTTP API and the answer is a single "OK" or "ERR <reason>"
line. Handy for poking devices from the box without touching the API.
*/
type Server struct {
	ctx        context.Context
	quit       chan interface{}
	wg         sync.WaitGroup
	listener   *net.UnixListener
	log        *logrus.Logger
	socketPath string
	dispatcher *gt06.Dispatcher
}

func NewUdsServer(ctx context.Context, socketPath string, dispatcher *gt06.Dispatcher) *Server {
	log := config.GetLogger(ctx)

	return &Server{
		ctx:        ctx,
		quit:       make(chan interface{}),
		wg:         sync.WaitGroup{},
		log:        log,
		socketPath: socketPath,
		dispatcher: dispatcher,
	}
}

func (us *Server) GetSocketPath() string {
	return us.socketPath
}

func (us *Server) removeUdsSocket() error {
	_, err := os.Stat(us.socketPath)
	if err == nil {
		if err := os.RemoveAll(us.socketPath); err != nil {
			return err
		}
	}

	return nil
}

func (us *Server) Start() error {
	// Remove UDS if exists in the file system
	err := us.removeUdsSocket()
	if err != nil {
		us.log.Errorf("Failed to remove socket file. %v", err)
	}

	const protocol = "unix"
	us.log.Debugf("Opening socket: %s", us.socketPath)
	laddr, err := net.ResolveUnixAddr(protocol, us.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr. %v", err)
	}
	us.listener, err = net.ListenUnix(protocol, laddr)
	if err != nil {
		return fmt.Errorf("failed to open socket. %v", err)
	}
	us.listener.SetUnlinkOnClose(true)

	us.wg.Add(1)
	go us.acceptConnections()

	return nil
}

func (us *Server) Stop() error {
	us.log.Infof("Shutdown admin console at %s", us.socketPath)

	close(us.quit)

	err := us.listener.Close()
	if err != nil {
		us.log.Errorf("Failed to close listener. %v", err)
	}

	us.wg.Wait()

	return err
}

func (us *Server) acceptConnections() {
	defer func() {
		us.wg.Done()
	}()

	for {
		conn, err := us.listener.Accept()
		if err != nil {
			select {
			case <-us.quit:
				return
			default:
				us.log.Errorf("failed to accept UDS connection. %v", err)
			}
		} else {
			us.log.Infof("New UDS connection accepted")

			us.wg.Add(1)
			go func() {
				defer func() {
					us.wg.Done()
				}()

				us.handleConnection(conn)
			}()
		}
	}
}

func (us *Server) handleConnection(conn net.Conn) {
	defer func() {
		err := conn.Close()
		if err != nil {
			us.log.Errorf("Failed to close UDS connection. %v", err)
		}
	}()

	var line bytes.Buffer

	for {
		buffer := make([]byte, 1)
		_, err := conn.Read(buffer)
		if err != nil {
			if err == io.EOF {
				us.log.Infof("UDS socket terminated.")
				return // connection has been closed
			}
			us.log.Errorf("Failed to read. %s", err)
			return
		}

		if buffer[0] == '\n' {
			response := us.executeLine(line.String())
			line.Reset()

			_, err = conn.Write([]byte(response + "\n"))
			if err != nil {
				us.log.Errorf("Failed to send response to UDS connection. %v", err)
				return
			}
		} else {
			_, err = line.Write(buffer)
			if err != nil {
				us.log.Errorf("Failed to write character into 'line' buffer. %v", err)
			}
		}
	}
}

func (us *Server) executeLine(line string) string {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "ERR expected: <IMEI> <COMMAND>"
	}

	imei := fields[0]
	command := fields[1]

	if !gt06.KnownCommand(command) {
		return fmt.Sprintf("ERR unknown command %s", command)
	}

	us.log.Infof("Admin console sends %s command to device with %s IMEI", command, imei)

	err := us.dispatcher.SendCommand(imei, command)
	if err != nil {
		return fmt.Sprintf("ERR %v", err)
	}

	return "OK"
}
