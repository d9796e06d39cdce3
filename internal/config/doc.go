// Package config provides centralized configuration management for riskdash.
// It handles loading configuration from multiple sources, validation, and
// resolution of the directories the service reads and writes.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML file (config.yaml, configs/config.yaml or RISKDASH_CONFIG_FILE)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern RISKDASH_<SECTION>_<FIELD>:
//
//	RISKDASH_SERVER_PORT=8080
//	RISKDASH_LOGGING_LEVEL=debug
//	RISKDASH_PATHS_BASE_DIR=/var/lib/riskdash
//	RISKDASH_ANALYTICS_LEAD_MONTHS=36
//	RISKDASH_JOBS_WORKERS=4
//
// # Path Management
//
// Paths resolves the data, processed, upload cache, exports, logs and inbox
// directories against one base directory:
//
//	paths, err := cfg.ResolvePaths()
//	upload := paths.GetUploadPath("real_estate_pd_reference_current_ab12.csv")
package config
