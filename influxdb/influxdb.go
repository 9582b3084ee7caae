package influxdb

import (
	"context"
	"fmt"

	_ "github.com/influxdata/influxdb1-client" // this is important because of the bug in go mod
	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/model"
)

const (
	ImeiTag = "imei"
	KindTag = "kind"
)

// Connection writes monitoring events into InfluxDB for live dashboards.
type Connection struct {
	ctx                context.Context
	url                string
	username           string
	password           string
	insecureSkipVerify bool
	measurement        string
	database           string

	client client.Client
}

func NewConnection(ctx context.Context, cfg *config.InfluxConfig) *Connection {
	return &Connection{
		ctx:                ctx,
		url:                cfg.Url,
		username:           cfg.Username,
		password:           cfg.Password,
		insecureSkipVerify: false,
		measurement:        cfg.Measurement,
		database:           cfg.Database,
	}
}

func (c *Connection) Connect() error {
	var err error

	c.client, err = client.NewHTTPClient(client.HTTPConfig{
		Addr:               c.url,
		Username:           c.username,
		Password:           c.password,
		InsecureSkipVerify: c.insecureSkipVerify,
	})

	if err != nil {
		return fmt.Errorf("error creating InfluxDB client. %v", err)
	}

	return nil
}

func (c *Connection) Close() error {
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close influxdb connection. %v", err)
	}
	return nil
}

// Publish implements the pipeline event sink. Failures are logged and
// swallowed; the monitoring stream is best effort by contract.
func (c *Connection) Publish(_ context.Context, event model.Event) {
	log := config.GetLogger(c.ctx)

	err := c.insert(event)
	if err != nil {
		log.Errorf("Failed to insert %s event into influxdb. %v", event.Kind, err)
	}
}

func (c *Connection) insert(event model.Event) error {
	if c.client == nil {
		return fmt.Errorf("influxdb client must not be nil, check the influxdb connection")
	}

	tags := map[string]string{
		ImeiTag: event.Imei,
		KindTag: string(event.Kind),
	}

	// Influx needs at least one field; the event counter doubles as one.
	fields := map[string]interface{}{
		"count": 1,
	}
	for k, v := range event.Fields {
		if _, ok := fields[k]; ok {
			continue
		}
		fields[k] = v
	}

	batchPointsConfig := client.BatchPointsConfig{
		Database: c.database,
	}

	bps, err := client.NewBatchPoints(batchPointsConfig)
	if err != nil {
		return fmt.Errorf("failed to create new batch points. %v", err)
	}

	point, err := client.NewPoint(c.measurement, tags, fields, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create new point. %v", err)
	}
	bps.AddPoint(point)

	err = c.client.Write(bps)
	if err != nil {
		return fmt.Errorf("failed to write batch points into influxdb. %v", err)
	}

	return nil
}
