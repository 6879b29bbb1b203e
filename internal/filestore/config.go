package filestore

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to reach the sequence data.
type Config struct {
	// Provider is the storage backend. Empty means ProviderLocal.
	Provider Provider

	// Root is the datasets directory for ProviderLocal. Keys are resolved
	// relative to it.
	Root string

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// Bucket holds the datasets tree for ProviderMinIO.
	Bucket string
}

// LocalConfig returns a config reading from the directory root.
func LocalConfig(root string) *Config {
	return &Config{Provider: ProviderLocal, Root: root}
}

// MinIOConfig returns a sensible local-dev config for MinIO.
func MinIOConfig(endpoint, accessKey, secretKey, bucket string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
	}
}
