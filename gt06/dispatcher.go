package gt06

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfleet/gt06d/config"
	metrics2 "github.com/openfleet/gt06d/metrics"
)

var (
	// ErrNotConnected means no live transport holds the device identity.
	ErrNotConnected = errors.New("device not connected")
	// ErrReconnectExhausted means the bounded reconnection budget is spent;
	// further attempts are rejected until the pending state is collected.
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
)

const (
	defaultMaxReconnectAttempts = 3
	defaultReconnectDelay       = 5 * time.Second
	defaultProbeWindow          = 2 * time.Second
	defaultPendingTimeout       = 30 * time.Minute
	commandWriteTimeout         = 5 * time.Second
)

type pendingReconnection struct {
	attempts    int
	lastAttempt time.Time
}

/*
Dispatcher writes protocol commands to live device sockets. Delivery is fire
and forget: a nil error only means the bytes were handed to the transport,
the applied state is confirmed out of band by the device's next status
sample. When the device is offline a bounded wait-and-recheck workflow runs
before failing; no probe bytes are sent because the device family has no
documented keep-alive frame.
*/
type Dispatcher struct {
	ctx      context.Context
	registry *Registry
	metrics  metrics2.TrackerMetricsInterface

	mu      sync.Mutex
	pending map[string]*pendingReconnection

	maxAttempts    int
	reconnectDelay time.Duration
	probeWindow    time.Duration
	pendingTimeout time.Duration

	serial uint32
}

func NewDispatcher(ctx context.Context, wg *sync.WaitGroup, registry *Registry, metrics metrics2.TrackerMetricsInterface) *Dispatcher {
	d := &Dispatcher{
		ctx:            ctx,
		registry:       registry,
		metrics:        metrics,
		pending:        make(map[string]*pendingReconnection),
		maxAttempts:    defaultMaxReconnectAttempts,
		reconnectDelay: defaultReconnectDelay,
		probeWindow:    defaultProbeWindow,
		pendingTimeout: defaultPendingTimeout,
	}

	d.startPeriodicCleanupPending(wg)

	return d
}

// SetRetryPolicy overrides the reconnection bounds. Zero values keep the
// current setting.
func (d *Dispatcher) SetRetryPolicy(maxAttempts int, reconnectDelay, probeWindow time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if maxAttempts > 0 {
		d.maxAttempts = maxAttempts
	}
	if reconnectDelay > 0 {
		d.reconnectDelay = reconnectDelay
	}
	if probeWindow > 0 {
		d.probeWindow = probeWindow
	}
}

/*
SendCommand translates commandName via the fixed command table and writes the
rendered frame to the device's live socket. The call blocks at most for the
bounded reconnection window. Returned errors wrap ErrNotConnected or
ErrReconnectExhausted so callers can distinguish registry level failures from
socket level write failures.
*/
func (d *Dispatcher) SendCommand(imei string, commandName string) error {
	log := config.GetLogger(d.ctx)

	if !KnownCommand(commandName) {
		return fmt.Errorf("unknown command: %s", commandName)
	}

	if !d.registry.IsOnline(imei) {
		err := d.awaitReconnect(imei)
		if err != nil {
			d.addFailedDispatches(1)
			return err
		}
	}

	dc, ok := d.registry.LookupByImei(imei)
	if !ok || dc.Conn == nil {
		d.addFailedDispatches(1)
		return fmt.Errorf("%s: %w", imei, ErrNotConnected)
	}

	payload, err := EncodeCommand(commandName, d.nextSerial())
	if err != nil {
		return err
	}

	log.Debugf("Sending %s command to device with %s IMEI on %s", commandName, imei, dc.ConnectionId)

	err = dc.Conn.SetWriteDeadline(time.Now().Add(commandWriteTimeout))
	if err != nil {
		log.Debugf("failed to set write deadline for %s. %v", dc.ConnectionId, err)
	}

	_, err = dc.Conn.Write(payload)
	if err != nil {
		d.addFailedDispatches(1)
		return fmt.Errorf("failed to write command to %s. %v", dc.ConnectionId, err)
	}

	d.clearPending(imei)
	d.addDispatchedCommands(1)

	return nil
}

// IsConnected exposes the registry liveness check for status queries.
func (d *Dispatcher) IsConnected(imei string) bool {
	return d.registry.IsOnline(imei)
}

/*
awaitReconnect runs the bounded reconnection workflow: up to maxAttempts
spaced at least reconnectDelay apart, each waiting probeWindow for the device
to come back. State survives across calls, so a burst of dispatches to an
offline device spends the shared budget instead of multiplying it.
*/
func (d *Dispatcher) awaitReconnect(imei string) error {
	log := config.GetLogger(d.ctx)

	for {
		d.mu.Lock()
		p, ok := d.pending[imei]
		if !ok {
			p = &pendingReconnection{}
			d.pending[imei] = p
		}

		if p.attempts >= d.maxAttempts {
			d.mu.Unlock()
			return fmt.Errorf("%s: %w", imei, ErrReconnectExhausted)
		}

		wait := d.reconnectDelay - time.Since(p.lastAttempt)
		if wait < 0 {
			wait = 0
		}
		p.attempts++
		p.lastAttempt = time.Now().Add(wait)
		probeWindow := d.probeWindow
		attempt := p.attempts
		d.mu.Unlock()

		log.Debugf("Reconnection attempt %d for device with %s IMEI", attempt, imei)

		// No probe bytes are sent, see the type comment: wait out the
		// spacing plus the probe window, then recheck liveness.
		if !d.sleep(wait + probeWindow) {
			return fmt.Errorf("%s: %w", imei, ErrNotConnected)
		}

		if d.registry.IsOnline(imei) {
			return nil
		}
	}
}

func (d *Dispatcher) clearPending(imei string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pending, imei)
}

// sleep waits for the given duration, returning false when the dispatcher
// context was cancelled first.
func (d *Dispatcher) sleep(duration time.Duration) bool {
	if duration <= 0 {
		return true
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-d.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Periodically drop abandoned reconnection state so exhausted devices become
// eligible again after the timeout.
func (d *Dispatcher) startPeriodicCleanupPending(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.cleanupPending()
			}
		}
	}()
}

func (d *Dispatcher) cleanupPending() {
	log := config.GetLogger(d.ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	for imei, p := range d.pending {
		if time.Since(p.lastAttempt) > d.pendingTimeout {
			delete(d.pending, imei)
			log.Debugf("Pending reconnection state for device with %s IMEI has been collected.", imei)
		}
	}
}

func (d *Dispatcher) nextSerial() uint16 {
	return uint16(atomic.AddUint32(&d.serial, 1))
}
