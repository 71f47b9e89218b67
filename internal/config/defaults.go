package config

const (
	defaultDBDriver              = "sqlite"
	defaultDBPath                = "feedkeeper.db"
	defaultAddr                  = ":8080"
	defaultWorkers               = 0
	defaultTimeoutSeconds        = 30
	defaultUserAgent             = "feedkeeper/1.0"
	defaultPerDomainConcurrency  = 2
	defaultPerDomainDelayMS      = 500
	defaultGlobalIntervalMinutes = 15
	defaultTickSeconds           = 60
	defaultLogLevel              = "info"
	defaultLogFormat             = "auto"
)

// Default returns a Config populated with built-in defaults. Workers = 0
// lets the coordinator pick a pool size for the database driver.
func Default() Config {
	return Config{
		Database: Database{
			Driver: defaultDBDriver,
			Path:   defaultDBPath,
		},
		Server: Server{Addr: defaultAddr},
		Fetch: Fetch{
			Workers:              defaultWorkers,
			TimeoutSeconds:       defaultTimeoutSeconds,
			UserAgent:            defaultUserAgent,
			PerDomainConcurrency: defaultPerDomainConcurrency,
			PerDomainDelayMS:     defaultPerDomainDelayMS,
		},
		AutoUpdate: AutoUpdate{
			GlobalIntervalMinutes: defaultGlobalIntervalMinutes,
			TickSeconds:           defaultTickSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
