package config

import (
	"context"
	"github.com/sirupsen/logrus"
)

type Config struct {
	log             *logrus.Logger
	trackerConfig   *TrackerConfig
	mongoConfig     *MongoConfig
	redisConfig     *RedisConfig
	influxConfig    *InfluxConfig
	metricsConfig   *MetricsConfig
	apiConfig       *ApiConfig
	udsServerConfig *UdsServerConfig
	retentionConfig *RetentionConfig
}

func NewConfig(log *logrus.Logger, trackerConfig *TrackerConfig, mongoConfig *MongoConfig, redisConfig *RedisConfig, influxConfig *InfluxConfig, metricsConfig *MetricsConfig, apiConfig *ApiConfig, udsServerConfig *UdsServerConfig, retentionConfig *RetentionConfig) *Config {
	return &Config{
		log:             log,
		trackerConfig:   trackerConfig,
		mongoConfig:     mongoConfig,
		redisConfig:     redisConfig,
		influxConfig:    influxConfig,
		metricsConfig:   metricsConfig,
		apiConfig:       apiConfig,
		udsServerConfig: udsServerConfig,
		retentionConfig: retentionConfig,
	}
}

func (c *Config) GetTrackerConfig() *TrackerConfig {
	return c.trackerConfig
}

func (c *Config) GetMongoConfig() *MongoConfig {
	return c.mongoConfig
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return c.redisConfig
}

func (c *Config) GetInfluxConfig() *InfluxConfig {
	return c.influxConfig
}

func (c *Config) GetMetricsConfig() *MetricsConfig {
	return c.metricsConfig
}

func (c *Config) GetApiConfig() *ApiConfig {
	return c.apiConfig
}

func (c *Config) GetUdsServerConfig() *UdsServerConfig {
	return c.udsServerConfig
}

func (c *Config) GetRetentionConfig() *RetentionConfig {
	return c.retentionConfig
}

func (c *Config) GetLogger() *logrus.Logger {
	return c.log
}

func GetLogger(ctx context.Context) *logrus.Logger {
	config := ctx.Value(ContextConfigKey).(*Config)
	return config.GetLogger()
}
