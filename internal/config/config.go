// Package config loads data store settings from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"scodata/internal/blob"
	"scodata/internal/core"
	"scodata/internal/ingest"
	"scodata/internal/metadata"
)

// EnvConfigPath names the YAML file read by Load when no path is given.
const EnvConfigPath = "SCODATA_CONFIG"

// Config is the complete store configuration.
type Config struct {
	Metadata          MetadataConfig               `yaml:"metadata"`
	Files             FilesConfig                  `yaml:"files"`
	FunctionalData    ingest.Policy                `yaml:"functional_data"`
	ArchiveSuffixes   []string                     `yaml:"archive_suffixes"`
	ImageSuffixes     []string                     `yaml:"image_suffixes"`
	ImageGroupOptions []AttributeConfig            `yaml:"image_group_options"`
	Properties        map[string][]AttributeConfig `yaml:"properties"`
	Log               LogConfig                    `yaml:"log"`
	Trace             TraceConfig                  `yaml:"trace"`
	Metrics           MetricsConfig                `yaml:"metrics"`
}

// MetadataConfig selects the metadata store backend.
type MetadataConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// FilesConfig selects the file store backend.
type FilesConfig struct {
	Driver string    `yaml:"driver"`
	Root   string    `yaml:"root"`
	S3     S3Config  `yaml:"s3"`
	GCS    GCSConfig `yaml:"gcs"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type GCSConfig struct {
	Bucket       string `yaml:"bucket"`
	EmulatorHost string `yaml:"emulator_host"`
	Credentials  string `yaml:"credentials"`
}

// AttributeConfig declares one attribute definition. Type is one of any, int,
// float, string, enum or list; Expr is an optional CEL predicate over value.
type AttributeConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Values      []string `yaml:"values"`
	Expr        string   `yaml:"expr"`
	Default     any      `yaml:"default"`
}

// LogConfig.Mode is dev, prod or nop.
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// TraceConfig.Mode is none, json, otel-stdout or otlp.
type TraceConfig struct {
	Mode        string `yaml:"mode"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig.Mode is none, expvar or prometheus.
type MetricsConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the built-in configuration: sqlite metadata in
// ./scodata.db and files under ./blobdata.
func Default() Config {
	return Config{
		Metadata:        MetadataConfig{Driver: string(metadata.DriverSQLite), SQLitePath: "scodata.db"},
		Files:           FilesConfig{Driver: string(blob.DriverFilesystem), Root: "blobdata"},
		FunctionalData:  ingest.DefaultPolicy(),
		ArchiveSuffixes: append([]string(nil), ingest.DefaultArchiveSuffixes...),
		ImageSuffixes:   append([]string(nil), core.DefaultImageSuffixes...),
		Log:             LogConfig{Mode: "dev"},
		Trace:           TraceConfig{Mode: "none", ServiceName: "scodata"},
		Metrics:         MetricsConfig{Mode: "none"},
	}
}

// Load reads path (or $SCODATA_CONFIG when path is empty) over the defaults
// and then applies environment overrides. A missing file is an error only
// when a path was given.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over cfg. Unknown keys are rejected.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Environment overrides:
//
//	SCODATA_METADATA_DRIVER, SCODATA_SQLITE_PATH, SCODATA_POSTGRES_DSN,
//	SCODATA_REDIS_ADDR, SCODATA_REDIS_PASSWORD, SCODATA_REDIS_DB,
//	SCODATA_BLOB_DRIVER, SCODATA_BLOB_FS_ROOT, SCODATA_BLOB_S3_BUCKET,
//	SCODATA_BLOB_S3_REGION, SCODATA_BLOB_S3_ENDPOINT, SCODATA_BLOB_S3_PATH_STYLE,
//	SCODATA_BLOB_GCS_BUCKET, STORAGE_EMULATOR_HOST,
//	SCODATA_FUNCDATA_SUFFIXES, SCODATA_FUNCDATA_ARCHIVE_SUFFIXES,
//	SCODATA_ARCHIVE_SUFFIXES, SCODATA_IMAGE_SUFFIXES (comma separated),
//	SCODATA_LOG_MODE, SCODATA_TRACE_MODE, SCODATA_TRACE_ENDPOINT, SCODATA_METRICS_MODE
func (c *Config) applyEnv() error {
	setString(&c.Metadata.Driver, "SCODATA_METADATA_DRIVER")
	setString(&c.Metadata.SQLitePath, "SCODATA_SQLITE_PATH")
	setString(&c.Metadata.PostgresDSN, "SCODATA_POSTGRES_DSN")
	setString(&c.Metadata.RedisAddr, "SCODATA_REDIS_ADDR")
	setString(&c.Metadata.RedisPassword, "SCODATA_REDIS_PASSWORD")
	if raw := strings.TrimSpace(os.Getenv("SCODATA_REDIS_DB")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("SCODATA_REDIS_DB: %w", err)
		}
		c.Metadata.RedisDB = n
	}
	setString(&c.Files.Driver, "SCODATA_BLOB_DRIVER")
	setString(&c.Files.Root, "SCODATA_BLOB_FS_ROOT")
	setString(&c.Files.S3.Bucket, "SCODATA_BLOB_S3_BUCKET")
	setString(&c.Files.S3.Region, "SCODATA_BLOB_S3_REGION")
	setString(&c.Files.S3.Endpoint, "SCODATA_BLOB_S3_ENDPOINT")
	if raw := strings.TrimSpace(os.Getenv("SCODATA_BLOB_S3_PATH_STYLE")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("SCODATA_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Files.S3.PathStyle = b
	}
	setString(&c.Files.GCS.Bucket, "SCODATA_BLOB_GCS_BUCKET")
	setString(&c.Files.GCS.EmulatorHost, "STORAGE_EMULATOR_HOST")
	setList(&c.FunctionalData.DataSuffixes, "SCODATA_FUNCDATA_SUFFIXES")
	setList(&c.FunctionalData.ArchiveSuffixes, "SCODATA_FUNCDATA_ARCHIVE_SUFFIXES")
	setList(&c.ArchiveSuffixes, "SCODATA_ARCHIVE_SUFFIXES")
	setList(&c.ImageSuffixes, "SCODATA_IMAGE_SUFFIXES")
	setString(&c.Log.Mode, "SCODATA_LOG_MODE")
	setString(&c.Trace.Mode, "SCODATA_TRACE_MODE")
	setString(&c.Trace.Endpoint, "SCODATA_TRACE_ENDPOINT")
	setString(&c.Metrics.Mode, "SCODATA_METRICS_MODE")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

// Validate checks mode names and that at least one upload suffix is accepted.
func (c Config) Validate() error {
	var errs []error
	if len(c.FunctionalData.DataSuffixes)+len(c.FunctionalData.ArchiveSuffixes) == 0 {
		errs = append(errs, errors.New("functional_data: no suffixes configured"))
	}
	if len(c.ArchiveSuffixes) == 0 {
		errs = append(errs, errors.New("archive_suffixes: empty"))
	}
	if len(c.ImageSuffixes) == 0 {
		errs = append(errs, errors.New("image_suffixes: empty"))
	}
	if !oneOf(c.Trace.Mode, "", "none", "json", "otel-stdout", "otlp") {
		errs = append(errs, fmt.Errorf("trace.mode: unknown mode %q", c.Trace.Mode))
	}
	if !oneOf(c.Metrics.Mode, "", "none", "expvar", "prometheus") {
		errs = append(errs, fmt.Errorf("metrics.mode: unknown mode %q", c.Metrics.Mode))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Storage converts the backend selection into the service storage config.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Metadata: metadata.Config{
			Driver:      metadata.Driver(c.Metadata.Driver),
			SQLitePath:  c.Metadata.SQLitePath,
			PostgresDSN: c.Metadata.PostgresDSN,
			Redis: metadata.RedisConfig{
				Addr:     c.Metadata.RedisAddr,
				Password: c.Metadata.RedisPassword,
				DB:       c.Metadata.RedisDB,
				Prefix:   c.Metadata.RedisPrefix,
			},
		},
		Blob: blob.Config{
			Driver: blob.Driver(c.Files.Driver),
			FSRoot: c.Files.Root,
			S3: blob.S3Config{
				Bucket:    c.Files.S3.Bucket,
				Region:    c.Files.S3.Region,
				Endpoint:  c.Files.S3.Endpoint,
				PathStyle: c.Files.S3.PathStyle,
			},
			GCS: blob.GCSConfig{
				Bucket:       c.Files.GCS.Bucket,
				EmulatorHost: c.Files.GCS.EmulatorHost,
				Credentials:  c.Files.GCS.Credentials,
			},
		},
	}
}
