package gt06

func (s *Server) addReceivedBytes(count uint64) {
	if s.metrics != nil {
		s.metrics.AddReceivedBytes(count)
	}
}

func (s *Server) addReceivedFrames(count uint64) {
	if s.metrics != nil {
		s.metrics.AddReceivedFrames(count)
	}
}

func (s *Server) addSentBytes(count uint64) {
	if s.metrics != nil {
		s.metrics.AddSentBytes(count)
	}
}

func (s *Server) addSentFrames(count uint64) {
	if s.metrics != nil {
		s.metrics.AddSentFrames(count)
	}
}

func (s *Server) addMalformedFrames(count uint64) {
	if s.metrics != nil {
		s.metrics.AddMalformedFrames(count)
	}
}

func (d *Dispatcher) addDispatchedCommands(count uint64) {
	if d.metrics != nil {
		d.metrics.AddDispatchedCommands(count)
	}
}

func (d *Dispatcher) addFailedDispatches(count uint64) {
	if d.metrics != nil {
		d.metrics.AddFailedDispatches(count)
	}
}
