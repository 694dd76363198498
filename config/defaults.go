package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Cache:     DefaultCacheConfig(),
		Bus:       DefaultBusConfig(),
		Engine:    DefaultEngineConfig(),
		Auth:      DefaultAuthConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MetricsAddr:     ":9091",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultDatabaseConfig returns an in-memory store so the service runs
// without external dependencies.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Type:            "memory",
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "conflux",
		Password:        "",
		Name:            "conflux",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultCacheConfig returns in-process cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:  "memory",
		Capacity: 1000,
		TTL:      5 * time.Minute,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Password:     "",
			DB:           0,
			MaxRetries:   3,
			PoolSize:     10,
			MinIdleConns: 2,
		},
	}
}

// DefaultBusConfig returns default change notification settings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		QueueSize:   64,
		SendTimeout: 5 * time.Second,
	}
}

// DefaultEngineConfig returns default orchestration settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CacheTTL:  5 * time.Minute,
		OpTimeout: 10 * time.Second,
	}
}

// DefaultAuthConfig returns authentication disabled.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{Enabled: false}
}

// DefaultRateLimitConfig returns rate limiting disabled.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: false,
		RPS:     100,
		Burst:   200,
	}
}

// DefaultLogConfig returns JSON logging to stdout at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns telemetry disabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "conflux",
		SampleRate:   0.1,
	}
}
