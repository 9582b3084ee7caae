package storage

import (
	"context"
	"sync"
	"time"

	"github.com/openfleet/gt06d/model"
)

// MemoryStore is an in-memory device registry and telemetry store, used by
// tests and for running the server without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	devices   map[string]*model.Device
	status    []*model.StatusSample
	locations []*model.LocationSample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]*model.Device),
	}
}

func (s *MemoryStore) AddDevice(device *model.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[device.Imei] = device
}

func (s *MemoryStore) FindDeviceByImei(_ context.Context, imei string) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[imei]
	if !ok {
		return nil, nil
	}
	return device, nil
}

func (s *MemoryStore) AppendStatus(_ context.Context, sample *model.StatusSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sample
	s.status = append(s.status, &copied)
	return nil
}

func (s *MemoryStore) AppendLocation(_ context.Context, sample *model.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sample
	s.locations = append(s.locations, &copied)
	return nil
}

func (s *MemoryStore) LatestStatus(_ context.Context, imei string) (*model.StatusSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestStatus(imei, false), nil
}

func (s *MemoryStore) LatestIgnitionOffStatus(_ context.Context, imei string) (*model.StatusSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestStatus(imei, true), nil
}

func (s *MemoryStore) latestStatus(imei string, ignitionOffOnly bool) *model.StatusSample {
	var latest *model.StatusSample
	for _, sample := range s.status {
		if sample.Imei != imei {
			continue
		}
		if ignitionOffOnly && sample.Ignition {
			continue
		}
		if latest == nil || sample.CreatedAt.After(latest.CreatedAt) {
			latest = sample
		}
	}
	if latest == nil {
		return nil
	}
	copied := *latest
	return &copied
}

func (s *MemoryStore) LatestLocation(_ context.Context, imei string) (*model.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.LocationSample
	for _, sample := range s.locations {
		if sample.Imei != imei {
			continue
		}
		if latest == nil || sample.CreatedAt.After(latest.CreatedAt) {
			latest = sample
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	keptStatus := s.status[:0]
	for _, sample := range s.status {
		if sample.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		keptStatus = append(keptStatus, sample)
	}
	s.status = keptStatus

	keptLocations := s.locations[:0]
	for _, sample := range s.locations {
		if sample.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		keptLocations = append(keptLocations, sample)
	}
	s.locations = keptLocations

	return deleted, nil
}

// StatusCount reports the number of stored status samples for an IMEI.
func (s *MemoryStore) StatusCount(imei string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sample := range s.status {
		if sample.Imei == imei {
			count++
		}
	}
	return count
}

// LocationCount reports the number of stored location samples for an IMEI.
func (s *MemoryStore) LocationCount(imei string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sample := range s.locations {
		if sample.Imei == imei {
			count++
		}
	}
	return count
}
