package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/model"
)

const queryTimeout = 5 * time.Second

// Connect opens and pings a MongoDB connection.
func Connect(ctx context.Context, cfg *config.MongoConfig) (*mongo.Database, error) {
	if cfg.Uri == "" {
		return nil, fmt.Errorf("mongo URI not provided")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.Uri)
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo. %v", err)
	}

	err = client.Ping(connectCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping mongo. %v", err)
	}

	return client.Database(cfg.Database), nil
}

/*
MongoStore implements both the device registry and the telemetry store on
top of MongoDB. Status and location records are append only; the command
path creates new status rows rather than updating old ones, so every latest
query is just a createdAt sort.
*/
type MongoStore struct {
	devices   *mongo.Collection
	status    *mongo.Collection
	locations *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		devices:   db.Collection("devices"),
		status:    db.Collection("status"),
		locations: db.Collection("locations"),
	}
}

func (s *MongoStore) FindDeviceByImei(ctx context.Context, imei string) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var device model.Device
	err := s.devices.FindOne(ctx, bson.M{"imei": imei}).Decode(&device)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *MongoStore) AppendStatus(ctx context.Context, sample *model.StatusSample) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.status.InsertOne(ctx, sample)
	return err
}

func (s *MongoStore) AppendLocation(ctx context.Context, sample *model.LocationSample) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.locations.InsertOne(ctx, sample)
	return err
}

func (s *MongoStore) LatestStatus(ctx context.Context, imei string) (*model.StatusSample, error) {
	return s.latestStatus(ctx, bson.M{"imei": imei})
}

func (s *MongoStore) LatestIgnitionOffStatus(ctx context.Context, imei string) (*model.StatusSample, error) {
	return s.latestStatus(ctx, bson.M{"imei": imei, "ignition": false})
}

func (s *MongoStore) latestStatus(ctx context.Context, filter bson.M) (*model.StatusSample, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"createdAt": -1})
	var sample model.StatusSample
	err := s.status.FindOne(ctx, filter, opts).Decode(&sample)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (s *MongoStore) LatestLocation(ctx context.Context, imei string) (*model.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"createdAt": -1})
	var sample model.LocationSample
	err := s.locations.FindOne(ctx, bson.M{"imei": imei}, opts).Decode(&sample)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// DeleteOlderThan removes status and location records older than cutoff and
// returns the number of deleted documents.
func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{"createdAt": bson.M{"$lt": cutoff}}

	statusResult, err := s.status.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old status records. %v", err)
	}

	locationResult, err := s.locations.DeleteMany(ctx, filter)
	if err != nil {
		return statusResult.DeletedCount, fmt.Errorf("failed to delete old location records. %v", err)
	}

	return statusResult.DeletedCount + locationResult.DeletedCount, nil
}
