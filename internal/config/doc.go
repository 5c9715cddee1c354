// Package config loads licensehub configuration.
//
// # Configuration Sources
//
// Configuration is assembled in order of increasing precedence:
//
//	1. Default() values
//	2. A YAML file: LICENSED_CONFIG_FILE, else ./config.yaml or ./configs/config.yaml
//	3. A .env file in the working directory (never overrides set variables)
//	4. Environment variables
//
// # Environment Variables
//
// Variables use the LICENSED prefix and the section name:
//
//	LICENSED_SERVER_PORT=8080
//	LICENSED_STORE_DRIVER=sqlite
//	LICENSED_STORE_SQLITE_PATH=licenses.db
//	LICENSED_ENGINE_MAX_ATTEMPTS=5
//	LICENSED_SECURITY_SECRET_KEY=...      (SECRET_KEY also accepted)
//	LICENSED_EVENTS_KAFKA_BROKERS=k1:9092,k2:9092
//
// Validate runs after loading and rejects incomplete store settings, an
// out-of-range retry budget and the development secret outside development.
package config
