// Package config loads the VTApi configuration file.
//
// Values come from a YAML file and may be overridden by environment
// variables. Precedence: environment > file > defaults.
package config

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
)

// Environment variables overriding file values.
const (
	EnvConnection  = "VTAPI_CONNECTION"
	EnvDatasetsDir = "VTAPI_DATASETS_DIR"
	EnvModulesDir  = "VTAPI_MODULES_DIR"
	EnvDataset     = "VTAPI_DATASET"
	EnvListen      = "VTAPI_SERVER_LISTEN"
)

// envPrefix is prepended to every key; nested keys join with "_", so
// filestore.secret_key reads VTAPI_FILESTORE_SECRET_KEY.
const envPrefix = "vtapi"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "vtapi.yaml"

// Config is the content of vtapi.yaml.
type Config struct {
	// Connection selects the backend by scheme: postgres://..., mysql://...,
	// sqlite://<folder> or a bare folder.
	Connection  string `yaml:"connection"`
	DatasetsDir string `yaml:"datasets_dir"`
	ModulesDir  string `yaml:"modules_dir"`

	Logfile   string `yaml:"logfile"`
	Verbose   bool   `yaml:"verbose"`
	LogFormat string `yaml:"log_format"`

	// Initial context.
	Dataset  string `yaml:"dataset"`
	Sequence string `yaml:"sequence"`
	Task     string `yaml:"task"`
	Method   string `yaml:"method"`
	Process  int    `yaml:"process"`

	Filestore FilestoreConfig `yaml:"filestore"`
	Server    ServerConfig    `yaml:"server"`
}

// FilestoreConfig selects where sequence data is read from.
type FilestoreConfig struct {
	Provider  string `yaml:"provider"` // local (default) or minio
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the values used for keys the file leaves out.
func Default() *Config {
	return &Config{
		LogFormat: "console",
		Filestore: FilestoreConfig{Provider: "local"},
		Server:    ServerConfig{Listen: ":8080"},
	}
}

// Load reads path, applies environment overrides and validates the
// result. An empty path means DefaultFile, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.parse(data); err != nil {
			return nil, err
		}
	case explicit || !os.IsNotExist(err):
		return nil, errs.Wrap(errs.ErrKindConfig, "cannot read config file "+path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults without environment
// overrides or validation.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "cannot read config", err)
	}
	cfg := Default()
	if err := cfg.parse(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return errs.Wrap(errs.ErrKindConfig, "failed to parse config file", err)
	}
	c.Connection = os.ExpandEnv(c.Connection)
	c.Filestore.AccessKey = os.ExpandEnv(c.Filestore.AccessKey)
	c.Filestore.SecretKey = os.ExpandEnv(c.Filestore.SecretKey)
	return nil
}

// applyEnv overrides file values with non-empty environment variables.
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	keys := []struct {
		key string
		dst *string
	}{
		{"connection", &c.Connection},
		{"datasets_dir", &c.DatasetsDir},
		{"modules_dir", &c.ModulesDir},
		{"dataset", &c.Dataset},
		{"filestore.endpoint", &c.Filestore.Endpoint},
		{"filestore.access_key", &c.Filestore.AccessKey},
		{"filestore.secret_key", &c.Filestore.SecretKey},
		{"filestore.bucket", &c.Filestore.Bucket},
		{"server.listen", &c.Server.Listen},
	}
	for _, k := range keys {
		_ = v.BindEnv(k.key)
		if val := v.GetString(k.key); val != "" {
			*k.dst = val
		}
	}
}

// Validate reports the first missing required key.
func (c *Config) Validate() error {
	required := []struct{ key, val string }{
		{"connection", c.Connection},
		{"datasets_dir", c.DatasetsDir},
		{"modules_dir", c.ModulesDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return errs.Newf(errs.ErrKindConfig, "missing required option %q", r.key)
		}
	}
	switch c.Filestore.Provider {
	case "", "local":
	case "minio":
		if c.Filestore.Endpoint == "" || c.Filestore.Bucket == "" {
			return errs.New(errs.ErrKindConfig, "minio filestore needs endpoint and bucket")
		}
	default:
		return errs.Newf(errs.ErrKindConfig, "unknown filestore provider %q", c.Filestore.Provider)
	}
	return nil
}

// Logger builds the logger the file describes. The returned closer
// releases the log file, if any.
func (c *Config) Logger() (*logger.Logger, io.Closer, error) {
	lc := logger.DefaultConfig()
	lc.Format = c.LogFormat
	if c.Verbose {
		lc.Level = "debug"
	}
	if c.Logfile == "" {
		return logger.New(lc), io.NopCloser(nil), nil
	}
	f, err := logger.OpenFile(c.Logfile)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindConfig, "cannot open log file", err)
	}
	lc.Output = f
	lc.Format = "json"
	return logger.New(lc), f, nil
}
