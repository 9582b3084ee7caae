package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	metricName   = "gt06d"
	saveInterval = 60 * time.Second
)

// Metrics is a file persisted counter set: counters survive process restarts
// by being flushed to fileName periodically and on Close.
type Metrics struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	values   *persistentMetrics
	fileName string
}

type persistentMetrics struct {
	SentBytes          uint64
	ReceivedBytes      uint64
	SentFrames         uint64
	ReceivedFrames     uint64
	MalformedFrames    uint64
	RejectedMessages   uint64
	DispatchedCommands uint64
	FailedDispatches   uint64
}

func NewMetrics(ctx context.Context, wg *sync.WaitGroup, fileName string) *Metrics {
	metrics := &Metrics{
		ctx:      ctx,
		wg:       wg,
		fileName: fileName,
		values:   &persistentMetrics{},
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := metrics.save()
				if err != nil {
					logrus.Errorf("Failed to save metrics. %v", err)
				}
			}
		}
	}()

	err := metrics.load()
	if err != nil {
		logrus.Warningf("Failed to load previously saved metrics. %v", err)
	}

	return metrics
}

func (m *Metrics) Close() error {
	err := m.save()
	if err != nil {
		return fmt.Errorf("failed to save metrics data. %v", err)
	}

	return nil
}

func (m *Metrics) AddSentBytes(count uint64) {
	atomic.AddUint64(&m.values.SentBytes, count)
}

func (m *Metrics) GetSentBytes() uint64 {
	return atomic.LoadUint64(&m.values.SentBytes)
}

func (m *Metrics) AddReceivedBytes(count uint64) {
	atomic.AddUint64(&m.values.ReceivedBytes, count)
}

func (m *Metrics) GetReceivedBytes() uint64 {
	return atomic.LoadUint64(&m.values.ReceivedBytes)
}

func (m *Metrics) AddSentFrames(count uint64) {
	atomic.AddUint64(&m.values.SentFrames, count)
}

func (m *Metrics) GetSentFrames() uint64 {
	return atomic.LoadUint64(&m.values.SentFrames)
}

func (m *Metrics) AddReceivedFrames(count uint64) {
	atomic.AddUint64(&m.values.ReceivedFrames, count)
}

func (m *Metrics) GetReceivedFrames() uint64 {
	return atomic.LoadUint64(&m.values.ReceivedFrames)
}

func (m *Metrics) AddMalformedFrames(count uint64) {
	atomic.AddUint64(&m.values.MalformedFrames, count)
}

func (m *Metrics) GetMalformedFrames() uint64 {
	return atomic.LoadUint64(&m.values.MalformedFrames)
}

func (m *Metrics) AddRejectedMessages(count uint64) {
	atomic.AddUint64(&m.values.RejectedMessages, count)
}

func (m *Metrics) GetRejectedMessages() uint64 {
	return atomic.LoadUint64(&m.values.RejectedMessages)
}

func (m *Metrics) AddDispatchedCommands(count uint64) {
	atomic.AddUint64(&m.values.DispatchedCommands, count)
}

func (m *Metrics) GetDispatchedCommands() uint64 {
	return atomic.LoadUint64(&m.values.DispatchedCommands)
}

func (m *Metrics) AddFailedDispatches(count uint64) {
	atomic.AddUint64(&m.values.FailedDispatches, count)
}

func (m *Metrics) GetFailedDispatches() uint64 {
	return atomic.LoadUint64(&m.values.FailedDispatches)
}

// MetricRendererHandler implements the MetricProvider interface of the
// metrics server.
func (m *Metrics) MetricRendererHandler() (string, map[string]uint64) {
	fields := map[string]uint64{
		"sentBytes":          m.GetSentBytes(),
		"receivedBytes":      m.GetReceivedBytes(),
		"sentFrames":         m.GetSentFrames(),
		"receivedFrames":     m.GetReceivedFrames(),
		"malformedFrames":    m.GetMalformedFrames(),
		"rejectedMessages":   m.GetRejectedMessages(),
		"dispatchedCommands": m.GetDispatchedCommands(),
		"failedDispatches":   m.GetFailedDispatches(),
	}

	return metricName, fields
}

func (m *Metrics) save() error {
	data, err := json.Marshal(m.values)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics. %v", err)
	}

	err = os.WriteFile(m.fileName, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write metrics file. %v", err)
	}

	return nil
}

func (m *Metrics) load() error {
	data, err := os.ReadFile(m.fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metrics file. %v", err)
	}

	err = json.Unmarshal(data, m.values)
	if err != nil {
		return fmt.Errorf("failed to unmarshal metrics file. %v", err)
	}

	return nil
}
