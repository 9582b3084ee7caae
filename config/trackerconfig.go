package config

type TrackerConfig struct {
	Host string
	Port int
}

type MongoConfig struct {
	Uri      string
	Database string
}

type RedisConfig struct {
	Url        string
	InstanceId string
}

type InfluxConfig struct {
	Url         string
	Username    string
	Password    string
	Database    string
	Measurement string
}

type MetricsConfig struct {
	Host                   string
	Port                   int
	TrackerMetricsFileName string
}

type ApiConfig struct {
	Host string
	Port int
}

type UdsServerConfig struct {
	SocketPath string
}

type RetentionConfig struct {
	Days int
}
