package storage

import (
	"context"
	"testing"
	"time"

	"github.com/openfleet/gt06d/model"
)

const testImei = "123456789012345"

func TestFindDeviceByImei(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	device, err := store.FindDeviceByImei(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if device != nil {
		t.Errorf("Expected no device, got %+v", device)
	}

	store.AddDevice(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

	device, err = store.FindDeviceByImei(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if device == nil || device.VehicleNo != "ABC-123" {
		t.Errorf("Wrong device returned: %+v", device)
	}
}

func TestLatestStatusQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()

	samples := []*model.StatusSample{
		{Imei: testImei, Ignition: true, CreatedAt: now.Add(-3 * time.Hour)},
		{Imei: testImei, Ignition: false, CreatedAt: now.Add(-2 * time.Hour)},
		{Imei: testImei, Ignition: true, CreatedAt: now.Add(-1 * time.Hour)},
		{Imei: "other", Ignition: false, CreatedAt: now},
	}
	for _, sample := range samples {
		err := store.AppendStatus(ctx, sample)
		if err != nil {
			t.Fatalf("Failed to append status. %v", err)
		}
	}

	latest, err := store.LatestStatus(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if latest == nil || !latest.Ignition {
		t.Errorf("Wrong latest status: %+v", latest)
	}

	ignitionOff, err := store.LatestIgnitionOffStatus(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if ignitionOff == nil || ignitionOff.Ignition {
		t.Fatalf("Wrong latest ignition-off status: %+v", ignitionOff)
	}
	if !ignitionOff.CreatedAt.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("Wrong ignition-off timestamp: %v", ignitionOff.CreatedAt)
	}
}

func TestLatestLocation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	location, err := store.LatestLocation(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if location != nil {
		t.Errorf("Expected no location, got %+v", location)
	}

	now := time.Now()
	err = store.AppendLocation(ctx, &model.LocationSample{Imei: testImei, Speed: 10, CreatedAt: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("Failed to append location. %v", err)
	}
	err = store.AppendLocation(ctx, &model.LocationSample{Imei: testImei, Speed: 20, CreatedAt: now})
	if err != nil {
		t.Fatalf("Failed to append location. %v", err)
	}

	location, err = store.LatestLocation(ctx, testImei)
	if err != nil {
		t.Fatalf("Unexpected error. %v", err)
	}
	if location == nil || location.Speed != 20 {
		t.Errorf("Wrong latest location: %+v", location)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	cutoff := now.AddDate(0, 0, -90)

	err := store.AppendStatus(ctx, &model.StatusSample{Imei: testImei, CreatedAt: now.AddDate(0, 0, -100)})
	if err != nil {
		t.Fatalf("Failed to append status. %v", err)
	}
	err = store.AppendStatus(ctx, &model.StatusSample{Imei: testImei, CreatedAt: now})
	if err != nil {
		t.Fatalf("Failed to append status. %v", err)
	}
	err = store.AppendLocation(ctx, &model.LocationSample{Imei: testImei, CreatedAt: now.AddDate(0, 0, -91)})
	if err != nil {
		t.Fatalf("Failed to append location. %v", err)
	}
	err = store.AppendLocation(ctx, &model.LocationSample{Imei: testImei, CreatedAt: now})
	if err != nil {
		t.Fatalf("Failed to append location. %v", err)
	}

	deleted, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("Failed to delete old telemetry. %v", err)
	}
	if deleted != 2 {
		t.Errorf("Wrong deleted count: %d", deleted)
	}
	if store.StatusCount(testImei) != 1 {
		t.Errorf("Wrong surviving status count: %d", store.StatusCount(testImei))
	}
	if store.LocationCount(testImei) != 1 {
		t.Errorf("Wrong surviving location count: %d", store.LocationCount(testImei))
	}
}
