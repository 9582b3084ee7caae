package metrics

type TrackerMetricsInterface interface {
	AddSentBytes(count uint64)
	AddReceivedBytes(count uint64)
	AddSentFrames(count uint64)
	AddReceivedFrames(count uint64)
	AddMalformedFrames(count uint64)
	AddRejectedMessages(count uint64)
	AddDispatchedCommands(count uint64)
	AddFailedDispatches(count uint64)
}
