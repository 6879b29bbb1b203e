package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/errs"
)

const sample = `
connection: sqlite:///var/lib/vtapi
datasets_dir: /data/datasets
modules_dir: /data/modules
verbose: true
dataset: demo
process: 3
filestore:
  provider: minio
  endpoint: localhost:9000
  bucket: vt
  access_key: ${VT_TEST_KEY}
server:
  listen: 127.0.0.1:9090
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vtapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	t.Setenv("VT_TEST_KEY", "secret")
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///var/lib/vtapi", cfg.Connection)
	assert.Equal(t, "/data/datasets", cfg.DatasetsDir)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "demo", cfg.Dataset)
	assert.Equal(t, 3, cfg.Process)
	assert.Equal(t, "minio", cfg.Filestore.Provider)
	assert.Equal(t, "secret", cfg.Filestore.AccessKey)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "console", cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("connection: [unterminated"))
	assert.True(t, errs.IsConfig(err))
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, sample)
	t.Setenv(EnvConnection, "postgres://vt@db/vtapi")
	t.Setenv(EnvDataset, "other")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://vt@db/vtapi", cfg.Connection)
	assert.Equal(t, "other", cfg.Dataset)
	assert.Equal(t, "/data/modules", cfg.ModulesDir)
}

func TestLoad_EnvOverrideKeys(t *testing.T) {
	path := writeFile(t, sample)
	t.Setenv(EnvDatasetsDir, "/env/datasets")
	t.Setenv(EnvModulesDir, "/env/modules")
	t.Setenv(EnvListen, ":7070")
	t.Setenv("VTAPI_FILESTORE_SECRET_KEY", "s3cr3t")
	t.Setenv(EnvConnection, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/datasets", cfg.DatasetsDir)
	assert.Equal(t, "/env/modules", cfg.ModulesDir)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "s3cr3t", cfg.Filestore.SecretKey)
	assert.Equal(t, "sqlite:///var/lib/vtapi", cfg.Connection, "an empty variable keeps the file value")
	assert.Equal(t, "demo", cfg.Dataset)
}

func TestLoad_EnvFillsMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvConnection, "/tmp/vt")
	t.Setenv(EnvDatasetsDir, "/tmp/ds")
	t.Setenv(EnvModulesDir, "/tmp/mod")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vt", cfg.Connection)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errs.IsConfig(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no connection", func(c *Config) { c.Connection = "" }, "connection"},
		{"no datasets_dir", func(c *Config) { c.DatasetsDir = " " }, "datasets_dir"},
		{"no modules_dir", func(c *Config) { c.ModulesDir = "" }, "modules_dir"},
		{"minio without bucket", func(c *Config) { c.Filestore = FilestoreConfig{Provider: "minio", Endpoint: "x"} }, "bucket"},
		{"unknown provider", func(c *Config) { c.Filestore.Provider = "ftp" }, "ftp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Connection = "/tmp/vt"
			cfg.DatasetsDir = "/tmp/ds"
			cfg.ModulesDir = "/tmp/mod"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLogger_File(t *testing.T) {
	cfg := Default()
	cfg.Logfile = filepath.Join(t.TempDir(), "vtapi.log")
	cfg.Verbose = true

	log, closer, err := cfg.Logger()
	require.NoError(t, err)
	log.Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.Logfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
