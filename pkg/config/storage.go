package config

import "time"

// StorageConfig configures the hybrid storage layer.
type StorageConfig struct {
	// PrimaryEnabled toggles the S3-compatible primary backend.
	// When false the service runs fallback-only.
	PrimaryEnabled *bool `yaml:"primary_enabled,omitempty"`

	// ObjectKeyTemplate shapes artifact keys. Tokens: {tenant}, {slug},
	// {date}, {name}.
	ObjectKeyTemplate string `yaml:"object_key_template"`

	// S3 holds the primary backend settings.
	S3 *S3Config `yaml:"s3,omitempty"`

	// LocalDir is the root directory of the filesystem fallback backend.
	LocalDir string `yaml:"local_dir"`

	// LocalBaseURL is the URL prefix for fallback "presigned" paths,
	// served by the local HTTP surface.
	LocalBaseURL string `yaml:"local_base_url"`

	// PresignTTL is the default presigned URL lifetime.
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// S3Config holds S3-compatible object store settings.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region,omitempty"`
	AccessKeyEnv    string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv    string `yaml:"secret_key_env,omitempty"`
	UseSSL          *bool  `yaml:"use_ssl,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty"`
	UploadPartSizeM int    `yaml:"upload_part_size_mb,omitempty"`
}

// PrimaryIsEnabled resolves the PrimaryEnabled toggle (default true when
// an S3 section is configured).
func (s *StorageConfig) PrimaryIsEnabled() bool {
	if s.PrimaryEnabled != nil {
		return *s.PrimaryEnabled
	}
	return s.S3 != nil
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		ObjectKeyTemplate: "reports/{tenant}/{slug}/{date}-{name}.docx",
		LocalDir:          "./data/artifacts",
		LocalBaseURL:      "/artifacts",
		PresignTTL:        15 * time.Minute,
	}
}
