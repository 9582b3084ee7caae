package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openfleet/gt06d/api"
	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/gt06"
	influxdb2 "github.com/openfleet/gt06d/influxdb"
	"github.com/openfleet/gt06d/messaging"
	m "github.com/openfleet/gt06d/metrics"
	mi "github.com/openfleet/gt06d/metrics/impl"
	"github.com/openfleet/gt06d/model"
	"github.com/openfleet/gt06d/pipeline"
	"github.com/openfleet/gt06d/presence"
	"github.com/openfleet/gt06d/storage"
	"github.com/openfleet/gt06d/uds"
)

func parseConfig() *config.Config {
	// Initialize logger
	log := config.NewLogger()

	// Read configuration
	viper.SetConfigName("cfg")                                     // Name of cfg file (without extension)
	viper.SetConfigType("yaml")                                    // REQUIRED if the cfg file does not have the extension in the name
	viper.AddConfigPath(fmt.Sprintf("/etc/%s/", config.AppName))   // path to look for the cfg file in
	viper.AddConfigPath(fmt.Sprintf("$HOME/.%s/", config.AppName)) // call multiple times to add many search paths
	viper.AddConfigPath(".")                                       // Optionally look for cfg in the working directory
	viper.SetEnvPrefix(config.ViperEnvPrefix)
	viper.AutomaticEnv() // Use environment variables if defined

	err := viper.ReadInConfig() // Find and read the cfg file
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		log.Infof("Config file was not found. Using defaults.")
	} else if err != nil {
		log.Fatalf("Failed to parse cfg file. %v", err)
	}

	// General configs
	flag.Bool(config.Debug, config.DefaultDebug, "Set log level to debug")
	flag.Bool(config.Verbose, config.DefaultVerbose, "Set log level to verbose")
	// Tracker server configs
	flag.String(config.TrackerListeningIp, config.DefaultTrackerListeningIP, "Tracker server listening IP address (IPv4 or IPv6)")
	flag.Int(config.TrackerListeningPort, config.DefaultTrackerListeningPort, "Tracker server listening TCP port")
	// MongoDB client configs
	flag.String(config.MongoConfigUri, config.DefaultMongoUri, "MongoDB connection URI")
	flag.String(config.MongoConfigDatabase, config.DefaultMongoDatabase, "MongoDB database name")
	// Redis presence configs
	flag.String(config.RedisConfigUrl, config.DefaultRedisUrl, "Redis URL for presence mirroring. Empty disables it.")
	flag.String(config.RedisConfigInstanceId, config.DefaultRedisInstanceId, "Instance identifier stored in presence entries. Defaults to the hostname.")
	// InfluxDB client configs
	flag.String(config.InfluxConfigUrl, config.DefaultInfluxDbUrl, "URL of InfluxDB server")
	flag.String(config.InfluxConfigUsername, config.DefaultInfluxDbUserName, "InfluxDB username")
	flag.String(config.InfluxConfigPassword, config.DefaultInfluxDbPassword, "InfluxDB password")
	flag.String(config.InfluxConfigDatabase, config.DefaultInfluxDbDatabaseName, "InfluxDB database name")
	flag.String(config.InfluxConfigMeasurement, config.DefaultInfluxDbMeasurementName, "Name of the Influxdb measurement")
	// Metrics server configs
	flag.String(config.MetricsListeningIp, config.DefaultMetricsListeningIP, "Metrics server listening IP address (IPv4 or IPv6)")
	flag.Int(config.MetricsListeningPort, config.DefaultMetricsListeningPort, "Metrics server listening port")
	flag.String(config.MetricsTrackerFileName, config.DefaultMetricsTrackerFileName, "File where metrics are written")
	// Command API configs
	flag.String(config.ApiListeningIp, config.DefaultApiListeningIP, "Command API listening IP address (IPv4 or IPv6)")
	flag.Int(config.ApiListeningPort, config.DefaultApiListeningPort, "Command API listening port")
	// Admin console configs
	flag.String(config.UdsSocketPath, config.DefaultUdsSocketPath, "Unix domain socket path of the admin console")
	// Retention configs
	flag.Int(config.TelemetryRetentionDays, config.DefaultTelemetryRetentionDays, "Days of telemetry history to keep. Zero disables the sweep.")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	err = viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		log.Errorf("Failed to bindPFlags. %v", err)
	}

	verbose := viper.GetBool(config.Verbose)
	debug := viper.GetBool(config.Debug)
	if verbose {
		log.SetLevel(logrus.TraceLevel)
		log.Warningf("Active log level: %s", log.GetLevel())
	} else if debug {
		log.SetLevel(logrus.DebugLevel)
		log.Warningf("Active log level: %s", log.GetLevel())
	}

	// Initialize cfg
	trackerConfig := &config.TrackerConfig{
		Host: viper.GetString(config.TrackerListeningIp),
		Port: viper.GetInt(config.TrackerListeningPort),
	}

	mongoConfig := &config.MongoConfig{
		Uri:      viper.GetString(config.MongoConfigUri),
		Database: viper.GetString(config.MongoConfigDatabase),
	}

	instanceId := viper.GetString(config.RedisConfigInstanceId)
	if instanceId == "" {
		instanceId, err = os.Hostname()
		if err != nil {
			log.Errorf("Failed to get hostname. %v", err)
		}
	}

	redisConfig := &config.RedisConfig{
		Url:        viper.GetString(config.RedisConfigUrl),
		InstanceId: instanceId,
	}

	influxConfig := &config.InfluxConfig{
		Url:         viper.GetString(config.InfluxConfigUrl),
		Username:    viper.GetString(config.InfluxConfigUsername),
		Password:    viper.GetString(config.InfluxConfigPassword),
		Database:    viper.GetString(config.InfluxConfigDatabase),
		Measurement: viper.GetString(config.InfluxConfigMeasurement),
	}

	metricsConfig := &config.MetricsConfig{
		Host:                   viper.GetString(config.MetricsListeningIp),
		Port:                   viper.GetInt(config.MetricsListeningPort),
		TrackerMetricsFileName: viper.GetString(config.MetricsTrackerFileName),
	}

	apiConfig := &config.ApiConfig{
		Host: viper.GetString(config.ApiListeningIp),
		Port: viper.GetInt(config.ApiListeningPort),
	}

	udsServerConfig := &config.UdsServerConfig{
		SocketPath: viper.GetString(config.UdsSocketPath),
	}

	retentionConfig := &config.RetentionConfig{
		Days: viper.GetInt(config.TelemetryRetentionDays),
	}

	cfg := config.NewConfig(log, trackerConfig, mongoConfig, redisConfig, influxConfig, metricsConfig, apiConfig, udsServerConfig, retentionConfig)
	return cfg
}

func main() {
	var wg sync.WaitGroup

	cfg := parseConfig()

	log := cfg.GetLogger()
	log.Tracef("Used tracker server configuration: %+v", cfg.GetTrackerConfig())
	log.Tracef("Used MongoDB configuration: %+v", cfg.GetMongoConfig())
	log.Tracef("Used InfluxDB client configuration: %+v", cfg.GetInfluxConfig())
	log.Tracef("Used metrics configuration: %+v", cfg.GetMetricsConfig())

	// Initialize context
	ctxSignals, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx := context.WithValue(ctxSignals, config.ContextConfigKey, cfg)

	// Connect to MongoDB
	db, err := storage.Connect(ctx, cfg.GetMongoConfig())
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB. %v", err)
		os.Exit(1)
	}
	defer func() {
		err := db.Client().Disconnect(context.Background())
		if err != nil {
			log.Errorf("Failed to disconnect from MongoDB. %v", err)
		}
	}()
	store := storage.NewMongoStore(db)

	// Initialize presence mirror
	presenceTracker, err := presence.NewTracker(ctx, cfg.GetRedisConfig())
	if err != nil {
		log.Fatalf("Failed to initialize presence mirror. %v", err)
		os.Exit(1)
	}
	defer func() {
		err := presenceTracker.Close()
		if err != nil {
			log.Errorf("Failed to close redis connection. %v", err)
		}
	}()

	// Initialize InfluxDB connection
	influxdb := influxdb2.NewConnection(ctx, cfg.GetInfluxConfig())
	defer func() {
		err := influxdb.Close()
		if err != nil {
			log.Errorf("Failed to close influxdb connection. %v", err)
		}
	}()

	// Connect to InfluxDB server
	err = influxdb.Connect()
	if err != nil {
		log.Fatalf("Failed to open influxdb connection. %v", err)
		os.Exit(1)
	}

	// Initialize metrics collector
	metrics := mi.NewMetrics(ctx, &wg, cfg.GetMetricsConfig().TrackerMetricsFileName)
	defer func() {
		err := metrics.Close()
		if err != nil {
			log.Errorf("Failed to close metrics. %v", err)
		}
	}()

	hostname, err := os.Hostname()
	if err != nil {
		log.Errorf("Failed to get hostname. %v", err)
	}
	tags := []string{
		fmt.Sprintf("host=%s", hostname),
	}

	metricsServer := m.NewServer(ctx, &wg, cfg.GetMetricsConfig(), tags, []m.MetricProvider{
		metrics,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		metricsServer.Start()
	}()

	// Initialize the in-process message bus
	messenger := messaging.NewMessaging(ctx)

	// Monitoring events go both to InfluxDB and to bus subscribers
	events := pipeline.MultiSink(influxdb, pipeline.EventSinkFunc(func(_ context.Context, event model.Event) {
		messenger.Publish(event)
	}))

	// Derived alerts are published on the bus too, the push gateway consumes
	// them from there
	notifier := pipeline.NotifierFunc(func(_ context.Context, notification model.Notification) error {
		log.Infof("Notification for device with %s IMEI: %s - %s", notification.Imei, notification.Title, notification.Message)
		messenger.Publish(notification)
		return nil
	})

	detector := pipeline.NewDetector(ctx, store, notifier)
	ingester := pipeline.NewPipeline(ctx, store, store, events, detector, metrics)

	// Initialize tracker server
	registry := gt06.NewRegistry()
	server := gt06.NewServer(ctx, &wg, cfg.GetTrackerConfig().Host, cfg.GetTrackerConfig().Port, registry, metrics,
		func(ctx context.Context, message gt06.TrackerMessage) {
			log.Debugf("PACKET ARRIVED: %+v", message)

			// every frame refreshes the presence TTL, quiet but connected
			// devices must not expire from the mirror
			if message.Imei != gt06.UnknownImei {
				presenceTracker.MarkOnline(ctx, message.Imei)
			}

			ingester.Ingest(ctx, message)
		},
		func(ctx context.Context, imei string, sourceAddress string) {
			presenceTracker.MarkOffline(ctx, imei)
			ingester.OnDisconnected(ctx, imei, sourceAddress)
		})
	defer func() {
		err := server.Stop()
		if err != nil {
			log.Errorf("Failed to stop tracker server. %v", err)
		}
	}()
	// Start tracker server
	err = server.Start()
	if err != nil {
		log.Fatalf("Failed to start tracker server. %v", err)
		os.Exit(1)
	}

	// Initialize command dispatcher
	dispatcher := gt06.NewDispatcher(ctx, &wg, registry, metrics)

	// Initialize command API server
	apiServer := api.NewServer(ctx, &wg, cfg.GetApiConfig(), dispatcher, registry, store, store, presenceTracker)
	wg.Add(1)
	go func() {
		defer wg.Done()
		apiServer.Start()
	}()

	// Initialize admin console
	udsServer := uds.NewUdsServer(ctx, cfg.GetUdsServerConfig().SocketPath, dispatcher)
	defer func() {
		err := udsServer.Stop()
		if err != nil {
			log.Errorf("Failed to stop UDS server. %v", err)
		}
	}()
	err = udsServer.Start()
	if err != nil {
		log.Errorf("failed to start UDS server. %v", err)
	}

	// Start telemetry retention sweep
	pipeline.StartRetention(ctx, &wg, store, cfg.GetRetentionConfig().Days)

	<-ctxSignals.Done()
	log.Infof("Exiting")
	stop()
	wg.Wait()
}
