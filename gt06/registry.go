package gt06

import (
	"net"
	"sync"
	"time"
)

/*
DeviceConnection represents one live transport. The identity is empty until
the first login frame binds it. The registry exclusively owns these entries
and mutates them under its lock; lookups hand out value snapshots so callers
never share the mutable state.
*/
type DeviceConnection struct {
	ConnectionId string
	Conn         net.Conn
	Imei         string
	ConnectedAt  time.Time
	LastSeen     time.Time
	Metadata     map[string]string

	closed bool
}

type OnlineDevice struct {
	Imei     string            `json:"imei"`
	LastSeen time.Time         `json:"lastSeen"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

/*
Registry is the process local table of active connections, addressable both
by connection id and, once known, by IMEI. At most one connection holds a
given IMEI as live: binding an identity displaces any stale prior mapping
(last bind wins). Safe for concurrent use from accept and dispatch loops.
*/
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*DeviceConnection
	byImei map[string]*DeviceConnection
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*DeviceConnection),
		byImei: make(map[string]*DeviceConnection),
	}
}

func (r *Registry) Register(connectionId string, conn net.Conn, metadata map[string]string) *DeviceConnection {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc := &DeviceConnection{
		ConnectionId: connectionId,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastSeen:     time.Now(),
		Metadata:     metadata,
	}
	r.byConn[connectionId] = dc
	return dc
}

// BindImei attaches a device identity to a registered connection. Idempotent;
// a previous mapping of the same IMEI to another connection is overwritten.
func (r *Registry) BindImei(connectionId string, imei string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc, ok := r.byConn[connectionId]
	if !ok {
		return
	}

	dc.Imei = imei
	dc.LastSeen = time.Now()
	r.byImei[imei] = dc
}

// Unregister removes the connection and, when it is still the active holder,
// its identity mapping. Returns the IMEI the connection was bound to.
func (r *Registry) Unregister(connectionId string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc, ok := r.byConn[connectionId]
	if !ok {
		return ""
	}

	delete(r.byConn, connectionId)
	dc.closed = true

	if dc.Imei != "" {
		if active, ok := r.byImei[dc.Imei]; ok && active == dc {
			delete(r.byImei, dc.Imei)
		}
	}
	return dc.Imei
}

// Touch updates the last seen timestamp of a connection.
func (r *Registry) Touch(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dc, ok := r.byConn[connectionId]; ok {
		dc.LastSeen = time.Now()
	}
}

// LookupByImei returns a snapshot of the connection holding the IMEI. The
// snapshot does not track later Touch or Unregister calls.
func (r *Registry) LookupByImei(imei string) (DeviceConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dc, ok := r.byImei[imei]
	if !ok {
		return DeviceConnection{}, false
	}
	return *dc, true
}

// IsOnline reports whether a live, not yet closed transport holds the IMEI.
func (r *Registry) IsOnline(imei string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dc, ok := r.byImei[imei]
	return ok && !dc.closed && dc.Conn != nil
}

func (r *Registry) ListOnline() []OnlineDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]OnlineDevice, 0, len(r.byImei))
	for imei, dc := range r.byImei {
		if dc.closed {
			continue
		}
		devices = append(devices, OnlineDevice{
			Imei:     imei,
			LastSeen: dc.LastSeen,
			Metadata: dc.Metadata,
		})
	}
	return devices
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byConn)
}

// CloseAll force closes every registered transport. Used on shutdown so
// blocked session reads unblock and tear themselves down.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]net.Conn, 0, len(r.byConn))
	for _, dc := range r.byConn {
		if dc.Conn != nil {
			conns = append(conns, dc.Conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
