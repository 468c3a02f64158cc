package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/naosu/data/db/naosu.db"
	}
	if cfg.Review.DefaultThreshold == 0 {
		cfg.Review.DefaultThreshold = 0.5
	}
	if cfg.Review.MinEvaluations == 0 {
		cfg.Review.MinEvaluations = 5
	}
	if cfg.History.PageSize == 0 {
		cfg.History.PageSize = 10
	}
	if cfg.History.MaxRecentVersions == 0 {
		cfg.History.MaxRecentVersions = 4
	}
	if cfg.History.MaxTotalVersions == 0 {
		cfg.History.MaxTotalVersions = 50
	}
}
