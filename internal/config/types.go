package config

import "time"

// Config is the root configuration structure for atlas.
// Serialised to ~/.atlas/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Store    StoreConfig    `mapstructure:"store"    json:"store"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  json:"gateway"`
	Display  DisplayConfig  `mapstructure:"display"  json:"display"`
}

// DatabaseConfig controls the storage engine behind the document store.
type DatabaseConfig struct {
	// Driver is "sqlite" (default), "mysql" or "badger".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
	// BadgerDir is the badger data directory (used when Driver == "badger").
	BadgerDir string `mapstructure:"badger_dir" json:"badger_dir"`
	// InMemory opens badger without disk persistence. Intended for tests.
	InMemory bool `mapstructure:"in_memory" json:"in_memory"`
}

// StoreConfig tunes the document store and fetches exposed to UI latency.
type StoreConfig struct {
	// FetchTimeout bounds a single dashboard fetch. Zero disables the timeout.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"`
	// BadgerGCSchedule is a cron expression ("@every 10m") for value log GC.
	// Empty disables scheduled GC.
	BadgerGCSchedule string `mapstructure:"badger_gc_schedule" json:"badger_gc_schedule"`
	// BadgerGCRatio is the minimum discardable ratio before a rewrite (0-1).
	BadgerGCRatio float64 `mapstructure:"badger_gc_ratio" json:"badger_gc_ratio"`
}

// GatewayConfig controls the local REST API.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6090).
	Port int `mapstructure:"port" json:"port"`
	// IngestDir is watched for snapshot files (*.json, *.yaml) written by the
	// external scan job. Empty disables the watcher.
	IngestDir string `mapstructure:"ingest_dir" json:"ingest_dir"`
	// IngestSchedule is the cron expression the watcher polls IngestDir on.
	IngestSchedule string `mapstructure:"ingest_schedule" json:"ingest_schedule"`
}

// DisplayConfig holds CLI presentation defaults.
type DisplayConfig struct {
	// PageSize is the default page size for paginated listings.
	PageSize int `mapstructure:"page_size" json:"page_size"`
	// ResourceType is the resource type used when --type is omitted.
	ResourceType string `mapstructure:"resource_type" json:"resource_type"`
	// Output is the default output format: table|json|yaml.
	Output string `mapstructure:"output" json:"output"`
}
