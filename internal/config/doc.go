// Package config provides configuration management for ineqmx.
//
// # Configuration Sources
//
// Configuration is assembled in increasing order of precedence:
//
//  1. Default values (Default)
//  2. A YAML file (INEQMX_CONFIG, ineqmx.yaml, config.yaml or configs/config.yaml)
//  3. Environment variables
//
// # Environment Variables
//
// Variables follow the INEQMX_<SECTION>_<FIELD> pattern:
//
//	INEQMX_SERVER_PORT=8080
//	INEQMX_PATHS_DATA_DIR=/srv/ineqmx/data
//	INEQMX_DOWNLOAD_WORKERS=4
//	INEQMX_PIPELINE_ENIGH_YEARS=2018,2020,2022
//	INEQMX_STORE_DSN=postgres://...
//
// # Paths
//
// Paths lays out the raw/interim/processed/external tree every pipeline step
// writes into. Dataset specific locations inside raw/ are resolved through the
// dataset manifest, never by probing the file system.
package config
