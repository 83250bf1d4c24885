package facets

import (
	"time"
)

// Config consolidates settings of the engine and its tools
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Catalog    CatalogConfig    `json:"catalog"`
	Attributes AttributesConfig `json:"attributes"`
	Query      QueryConfig      `json:"query"`
	Logging    LoggingConfig    `json:"logging"`
	Export     ExportConfig     `json:"export"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	// UseIAMAuth generates a short-lived IAM token instead of using Password.
	UseIAMAuth bool       `json:"useIAMAuth"`
	Region     string     `json:"region"`
	SQLitePath string     `json:"sqlitePath"`
	TableNames TableNames `json:"tableNames"`
}

// CatalogConfig contains schema catalog settings
type CatalogConfig struct {
	CacheEnabled  bool          `json:"cacheEnabled"`
	CacheTTL      time.Duration `json:"cacheTTL"`
	SeedDirectory string        `json:"seedDirectory"`
}

// AttributesConfig bounds attribute submissions
type AttributesConfig struct {
	MaxFieldsPerSubmission int `json:"maxFieldsPerSubmission"`
	// MaxValueLength applies to text-like values whose field declares no maxLength.
	MaxValueLength int `json:"maxValueLength"`
	WriteBatchSize int `json:"writeBatchSize"`
}

// QueryConfig contains search execution settings
type QueryConfig struct {
	DefaultTimeout  time.Duration `json:"defaultTimeout"`
	DefaultPageSize int           `json:"defaultPageSize"`
	MaxPageSize     int           `json:"maxPageSize"`
	// MaxCandidates is the batch size used to scan profiles when attribute filters are present.
	MaxCandidates int `json:"maxCandidates"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level              string `json:"level"`
	Format             string `json:"format"`
	EnableQueryLogging bool   `json:"enableQueryLogging"`
}

// ExportConfig contains attribute snapshot export settings
type ExportConfig struct {
	Enabled         bool   `json:"enabled"`
	DuckDBPath      string `json:"duckDBPath"`
	MemoryLimitMB   int    `json:"memoryLimitMB"`
	Threads         int    `json:"threads"`
	OutputDirectory string `json:"outputDirectory"`
	S3Bucket        string `json:"s3Bucket"`
	S3Prefix        string `json:"s3Prefix"`
	S3Region        string `json:"s3Region"`
	S3Endpoint      string `json:"s3Endpoint"`
	S3AccessKey     string `json:"s3AccessKey"`
	S3SecretKey     string `json:"s3SecretKey"`
	S3UsePathStyle  bool   `json:"s3UsePathStyle"`

	// Upload failures within UploadFailureWindow open the upload breaker for UploadCooldown.
	UploadFailureThreshold int           `json:"uploadFailureThreshold"`
	UploadFailureWindow    time.Duration `json:"uploadFailureWindow"`
	UploadCooldown         time.Duration `json:"uploadCooldown"`
}

// DefaultTableNames returns the standard table names.
func DefaultTableNames() TableNames {
	return TableNames{
		Categories:      "facet_categories",
		Fields:          "facet_fields",
		AttributeValues: "facet_attribute_values",
		ProfileVersions: "facet_profile_versions",
		Profiles:        "facet_profiles",
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "facets",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames:      DefaultTableNames(),
		},
		Catalog: CatalogConfig{
			CacheEnabled: true,
			CacheTTL:     1 * time.Minute,
		},
		Attributes: AttributesConfig{
			MaxFieldsPerSubmission: 200,
			MaxValueLength:         10000,
			WriteBatchSize:         500,
		},
		Query: QueryConfig{
			DefaultTimeout:  30 * time.Second,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			MaxCandidates:   10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Export: ExportConfig{
			MemoryLimitMB: 512,
			Threads:       2,
			S3Prefix:      "facets",

			UploadFailureThreshold: 3,
			UploadFailureWindow:    time.Minute,
			UploadCooldown:         30 * time.Second,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	if err := c.Database.TableNames.validate(); err != nil {
		return err
	}

	if c.Catalog.CacheEnabled && c.Catalog.CacheTTL <= 0 {
		return &ConfigError{Field: "catalog.cacheTTL", Message: "must be greater than 0 when the cache is enabled"}
	}

	if c.Attributes.MaxFieldsPerSubmission <= 0 {
		return &ConfigError{Field: "attributes.maxFieldsPerSubmission", Message: "must be greater than 0"}
	}

	if c.Attributes.WriteBatchSize <= 0 {
		return &ConfigError{Field: "attributes.writeBatchSize", Message: "must be greater than 0"}
	}

	if c.Query.DefaultPageSize <= 0 {
		return &ConfigError{Field: "query.defaultPageSize", Message: "must be greater than 0"}
	}

	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return &ConfigError{Field: "query.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}

	if c.Query.MaxCandidates < c.Query.MaxPageSize {
		return &ConfigError{Field: "query.maxCandidates", Message: "must be greater than or equal to maxPageSize"}
	}

	if c.Export.Enabled {
		if c.Export.OutputDirectory == "" && c.Export.S3Bucket == "" {
			return &ConfigError{Field: "export.outputDirectory", Message: "an output directory or s3 bucket is required"}
		}
		if (c.Export.S3AccessKey == "") != (c.Export.S3SecretKey == "") {
			return &ConfigError{Field: "export.s3AccessKey", Message: "access key and secret key must be provided together"}
		}
		if c.Export.MemoryLimitMB < 0 || c.Export.Threads < 0 {
			return &ConfigError{Field: "export.memoryLimitMB", Message: "duckdb limits must not be negative"}
		}
	}

	return nil
}

func (t TableNames) validate() error {
	switch {
	case t.Categories == "":
		return &ConfigError{Field: "database.tableNames.categories", Message: "must not be empty"}
	case t.Fields == "":
		return &ConfigError{Field: "database.tableNames.fields", Message: "must not be empty"}
	case t.AttributeValues == "":
		return &ConfigError{Field: "database.tableNames.attributeValues", Message: "must not be empty"}
	case t.ProfileVersions == "":
		return &ConfigError{Field: "database.tableNames.profileVersions", Message: "must not be empty"}
	case t.Profiles == "":
		return &ConfigError{Field: "database.tableNames.profiles", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
