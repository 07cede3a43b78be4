package config

type Config struct {
	// AdminEmail is the fallback notification recipient when no recipient
	// column can be detected in a result row.
	AdminEmail string `json:"admin_email"`

	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Mail      MailConfig      `json:"mail"`

	// Database points at the database workload queries execute against.
	// If omitted, queries run against the storage database.
	Database *DatabaseConfig `json:"database,omitempty"`

	// Templates configures the optional external template registry.
	Templates *TemplatesConfig `json:"templates,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer (workload definitions,
// last-run report, scheduling throttle flags).
//
// Example:
//
//	"storage": { "path": "./querybell.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// DatabaseConfig points at the data database for workload queries.
type DatabaseConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SchedulerConfig controls the trigger service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone (IANA TZ, e.g. "Europe/Helsinki"). Empty means local.
	Timezone string `json:"timezone,omitempty"`

	// EnsureInterval throttles EnsureSchedules sweeps (Go duration string).
	// Default "1h".
	EnsureInterval string `json:"ensure_interval,omitempty"`
}

// MailConfig controls the outbound SMTP transport.
//
// With DryRun set, messages are logged instead of delivered. Useful for
// previewing workloads against production data.
type MailConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	From       string `json:"from"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// Timeout is a Go duration string bounding one SMTP dial+send.
	Timeout string `json:"timeout,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// TemplatesConfig points at a YAML registry of external mail templates
// (id -> recipient/subject/body/sender). Optional.
type TemplatesConfig struct {
	Path string `json:"path"`
}
