package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
		Debug       bool   `mapstructure:"debug"`
	} `mapstructure:"server"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Display struct {
		WSEnabled             bool   `mapstructure:"ws_enabled"`
		AllowMultiDevice      bool   `mapstructure:"allow_multi_device"`
		SnapshotEdgeMaxAge    int    `mapstructure:"snapshot_edge_max_age"`
		WSChannelCapacity     int    `mapstructure:"ws_channel_capacity"`
		WSPingIntervalSeconds int    `mapstructure:"ws_ping_interval_seconds"`
		WSMetricsLogInterval  int    `mapstructure:"ws_metrics_log_interval"`
		DefaultTimezone       string `mapstructure:"default_timezone"`
	} `mapstructure:"display"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	Storage struct {
		Provider     string `mapstructure:"provider"` // "local" or "s3"
		KeyID        string `mapstructure:"key_id"`
		AppKey       string `mapstructure:"app_key"`
		Endpoint     string `mapstructure:"endpoint"`
		Region       string `mapstructure:"region"`
		BucketAssets string `mapstructure:"bucket_assets"`
		LocalPath    string `mapstructure:"local_path"`
		PublicBase   string `mapstructure:"public_base"` // URL prefix displays can reach
	} `mapstructure:"storage"`
}

func Load() *Config {
	viper.SetEnvPrefix("DISPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.port")
	viper.BindEnv("server.metrics_port")
	viper.BindEnv("server.log_level")
	viper.BindEnv("server.debug")

	viper.BindEnv("database.host")
	viper.BindEnv("database.port")
	viper.BindEnv("database.user")
	viper.BindEnv("database.password")
	viper.BindEnv("database.name")

	viper.BindEnv("redis.addr")
	viper.BindEnv("redis.password")
	viper.BindEnv("redis.db")

	// Display fabric feature flags
	viper.BindEnv("display.ws_enabled")
	viper.BindEnv("display.allow_multi_device")
	viper.BindEnv("display.snapshot_edge_max_age")
	viper.BindEnv("display.ws_channel_capacity")
	viper.BindEnv("display.ws_ping_interval_seconds")
	viper.BindEnv("display.ws_metrics_log_interval")
	viper.BindEnv("display.default_timezone")

	viper.BindEnv("auth.jwt_secret")

	viper.BindEnv("storage.provider")
	viper.BindEnv("storage.key_id")
	viper.BindEnv("storage.app_key")
	viper.BindEnv("storage.endpoint")
	viper.BindEnv("storage.region")
	viper.BindEnv("storage.bucket_assets")
	viper.BindEnv("storage.local_path")
	viper.BindEnv("storage.public_base")

	// Defaults
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.metrics_port", ":9091")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.debug", false)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("display.ws_enabled", true)
	viper.SetDefault("display.allow_multi_device", false)
	viper.SetDefault("display.snapshot_edge_max_age", 10)
	viper.SetDefault("display.ws_channel_capacity", 2000)
	viper.SetDefault("display.ws_ping_interval_seconds", 30)
	viper.SetDefault("display.ws_metrics_log_interval", 300)
	viper.SetDefault("display.default_timezone", "Asia/Riyadh")

	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_path", "./data")
	viper.SetDefault("storage.public_base", "/media")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Auth.JWTSecret == "" {
		// Dev fallback; deployments set DISPLAY_AUTH_JWT_SECRET.
		cfg.Auth.JWTSecret = "change-me-display-admin"
	}

	return &cfg
}
