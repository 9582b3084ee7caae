package gt06

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/openfleet/gt06d/config"
	metrics2 "github.com/openfleet/gt06d/metrics"
)

func NewServer(ctx context.Context, wg *sync.WaitGroup, host string, port int, registry *Registry, metrics metrics2.TrackerMetricsInterface, callback PacketArrivedCallback, disconnected DisconnectedCallback) *Server {
	server := &Server{
		wg:           wg,
		host:         host,
		port:         port,
		callback:     callback,
		disconnected: disconnected,
		registry:     registry,
		metrics:      metrics,
		ctx:          ctx,
	}

	return server
}

func (s *Server) Start() error {
	log := config.GetLogger(s.ctx)

	log.Infof("Start tracker server on %s:%d", s.host, s.port)

	s.localCtx, s.stopFunc = context.WithCancel(s.ctx)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to open listening socket. %v", err)
	}
	s.listener = listener

	// Unblock the accept loop and all session reads on shutdown.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		<-s.localCtx.Done()

		err := listener.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Errorf("failed to close listening socket. %v", err)
		}
		s.registry.CloseAll()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}

				log.Errorf("failed to accept connection. %v", err)
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}()
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.stopFunc == nil {
		return fmt.Errorf("server is not running")
	}

	s.stopFunc()
	s.stopFunc = nil
	return nil
}

// Addr returns the bound listener address, useful when port 0 was requested.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) GetRegistry() *Registry {
	return s.registry
}
