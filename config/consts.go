package config

type MyKey struct {
	KeyName string
}

var (
	ContextConfigKey = MyKey{
		KeyName: "config",
	}
)

const (
	AppName        = "gt06d"
	ViperEnvPrefix = AppName
	Verbose        = "verbose"
	Debug          = "debug"

	TrackerListeningIp   = "listenip"
	TrackerListeningPort = "listenport"

	MongoConfigUri      = "mongouri"
	MongoConfigDatabase = "mongodatabase"

	RedisConfigUrl        = "redisurl"
	RedisConfigInstanceId = "instanceid"

	InfluxConfigUrl         = "influxurl"
	InfluxConfigUsername    = "influxusername"
	InfluxConfigPassword    = "influxpassword"
	InfluxConfigDatabase    = "influxdatabase"
	InfluxConfigMeasurement = "influxmeasurement"

	MetricsListeningIp     = "metricsip"
	MetricsListeningPort   = "metricsport"
	MetricsTrackerFileName = "mp"

	ApiListeningIp   = "apiip"
	ApiListeningPort = "apiport"

	UdsSocketPath = "udssocket"

	TelemetryRetentionDays = "retentiondays"

	DefaultDebug   = false
	DefaultVerbose = false

	DefaultTrackerListeningIP   = "0.0.0.0"
	DefaultTrackerListeningPort = 7777

	DefaultMongoUri      = "mongodb://localhost:27017"
	DefaultMongoDatabase = AppName

	// Empty redis URL means presence mirroring is disabled.
	DefaultRedisUrl        = ""
	DefaultRedisInstanceId = ""

	DefaultInfluxDbUrl             = "http://localhost:8086"
	DefaultInfluxDbDatabaseName    = AppName
	DefaultInfluxDbMeasurementName = "tracker_events"
	DefaultInfluxDbUserName        = AppName
	DefaultInfluxDbPassword        = "123"

	DefaultMetricsListeningIP     = "0.0.0.0"
	DefaultMetricsListeningPort   = 9161
	DefaultMetricsTrackerFileName = AppName + ".met"

	DefaultApiListeningIP   = "0.0.0.0"
	DefaultApiListeningPort = 8080

	DefaultUdsSocketPath = "/var/run/" + AppName + ".sock"

	DefaultTelemetryRetentionDays = 90
)
