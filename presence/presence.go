package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfleet/gt06d/config"
)

const (
	keyPrefix  = "presence:"
	entryTTL   = 5 * time.Minute
	callBudget = 2 * time.Second
)

/*
Tracker processes share no in-process state, so the connection registry is
per process and commands can only reach devices connected to the same
instance. Presence mirrors the registry into redis (IMEI to instance id,
with a TTL) so connection-status queries can at least tell on which instance
a device is connected. It does not enable cross process command delivery.

Everything here is best effort: a missing or failing redis must never affect
ingestion or dispatch, so a disabled Tracker (no redis URL configured) is a
valid, fully inert instance.
*/
type Tracker struct {
	ctx        context.Context
	client     *redis.Client
	instanceId string
}

func NewTracker(ctx context.Context, cfg *config.RedisConfig) (*Tracker, error) {
	log := config.GetLogger(ctx)

	tracker := &Tracker{
		ctx:        ctx,
		instanceId: cfg.InstanceId,
	}

	if cfg.Url == "" {
		log.Infof("Redis URL not provided, presence mirroring disabled.")
		return tracker, nil
	}

	opt, err := redis.ParseURL(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL. %v", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis. %v", err)
	}

	tracker.client = client
	log.Infof("Presence mirroring enabled as instance %s.", cfg.InstanceId)

	return tracker, nil
}

func (t *Tracker) Enabled() bool {
	return t != nil && t.client != nil
}

// MarkOnline records (or refreshes) the device's presence on this instance.
func (t *Tracker) MarkOnline(ctx context.Context, imei string) {
	if !t.Enabled() {
		return
	}

	log := config.GetLogger(t.ctx)

	callCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	err := t.client.Set(callCtx, keyPrefix+imei, t.instanceId, entryTTL).Err()
	if err != nil {
		log.Debugf("Failed to mark device with %s IMEI online in redis. %v", imei, err)
	}
}

// MarkOffline drops the device's presence entry when this instance owns it.
func (t *Tracker) MarkOffline(ctx context.Context, imei string) {
	if !t.Enabled() {
		return
	}

	log := config.GetLogger(t.ctx)

	callCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	owner, err := t.client.Get(callCtx, keyPrefix+imei).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debugf("Failed to read presence of device with %s IMEI from redis. %v", imei, err)
		}
		return
	}
	if owner != t.instanceId {
		// Another instance re-bound the identity in the meantime.
		return
	}

	err = t.client.Del(callCtx, keyPrefix+imei).Err()
	if err != nil {
		log.Debugf("Failed to mark device with %s IMEI offline in redis. %v", imei, err)
	}
}

// Lookup returns the instance the device is connected to, if any.
func (t *Tracker) Lookup(ctx context.Context, imei string) (string, bool) {
	if !t.Enabled() {
		return "", false
	}

	log := config.GetLogger(t.ctx)

	callCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	instance, err := t.client.Get(callCtx, keyPrefix+imei).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debugf("Failed to look up presence of device with %s IMEI in redis. %v", imei, err)
		}
		return "", false
	}

	return instance, true
}

func (t *Tracker) Close() error {
	if !t.Enabled() {
		return nil
	}

	return t.client.Close()
}
