package gt06

import (
	"encoding/hex"
	"io"
	"net"

	"github.com/openfleet/gt06d/config"
)

/*
handleConnection owns one accepted socket for its whole lifetime. The session
starts without an identity; the first login frame binds its IMEI in the
registry and later frames without an embedded identity inherit it. Frames are
decoded and forwarded strictly in arrival order. Acks are written back before
a message is processed further, so protocol level delivery never depends on
application persistence.
*/
func (s *Server) handleConnection(conn net.Conn) {
	log := config.GetLogger(s.ctx)

	connectionId := conn.RemoteAddr().String()
	log.Infof("New connection from %s", connectionId)

	s.registry.Register(connectionId, conn, map[string]string{})

	imei := ""
	defer func() {
		err := conn.Close()
		if err != nil {
			log.Debugf("failed to close connection of %s. %v", connectionId, err)
		}

		boundImei := s.registry.Unregister(connectionId)
		log.Infof("Connection closed from %s", connectionId)

		if boundImei != "" && s.disconnected != nil {
			s.disconnected(s.ctx, boundImei, connectionId)
		}
	}()

	decoder := NewFrameDecoder()
	buffer := make([]byte, 4*1024)

	for {
		size, err := conn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				log.Debugf("failed to read from %s. %v", connectionId, err)
			}
			return
		}

		log.Tracef("%d bytes received from %s: %s", size, connectionId, hex.EncodeToString(buffer[:size]))
		s.addReceivedBytes(uint64(size))

		messages, decodeErrs := decoder.Feed(buffer[:size])
		for _, decodeErr := range decodeErrs {
			// Malformed input never terminates the session.
			log.Warningf("Malformed data from %s: %v", connectionId, decodeErr)
			s.addMalformedFrames(1)
		}

		for _, message := range messages {
			s.addReceivedFrames(1)

			if message.Ack != nil {
				err := s.sendBytes(conn, message.Ack)
				if err != nil {
					// just log the error and let the session alive
					log.Errorf("Failed to send response to %s. %v Continue.", connectionId, err)
				}
			}

			if message.Kind == KindLogin {
				imei = message.Imei
				s.registry.BindImei(connectionId, imei)
				log.Infof("Device with %s IMEI logged in on %s", imei, connectionId)
			}

			s.registry.Touch(connectionId)

			resolved := message.Imei
			if resolved == "" {
				resolved = imei
			}
			if resolved == "" {
				// Identity is a data quality concern, not a protocol error:
				// forward anyway and let the pipeline reject it downstream.
				resolved = UnknownImei
			}

			s.callback(s.ctx, TrackerMessage{
				Message:       message,
				Imei:          resolved,
				SourceAddress: connectionId,
			})
		}
	}
}

func (s *Server) sendBytes(conn net.Conn, data []byte) error {
	log := config.GetLogger(s.ctx)

	log.Tracef("Sending %d bytes to %s: %s", len(data), conn.RemoteAddr(), hex.EncodeToString(data))

	size, err := conn.Write(data)
	if err != nil {
		return err
	}

	s.addSentBytes(uint64(size))
	s.addSentFrames(1)

	return nil
}
