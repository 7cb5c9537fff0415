package panefs

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Byte window capacity used by search sessions
	WindowSize int `env:"PANEFS_WINDOW_SIZE,default:65536"`

	// Logging
	LogLevel  string `env:"PANEFS_LOG_LEVEL,default:info"`
	LogFormat string `env:"PANEFS_LOG_FORMAT,default:text"` // text or json

	// Local driver configuration
	LocalRoot string `env:"PANEFS_LOCAL_ROOT,default:/"`

	// S3 driver configuration (bucket and key come from the location)
	S3Region          string `env:"PANEFS_S3_REGION,default:us-east-1"`
	S3Endpoint        string `env:"PANEFS_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"PANEFS_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"PANEFS_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"PANEFS_S3_FORCE_PATH_STYLE,default:false"`

	// GCS driver configuration
	GCSCredentialsFile string `env:"PANEFS_GCS_CREDENTIALS_FILE"` // Path to service account JSON

	// Azure Blob Storage driver configuration (container comes from the location host)
	AzureAccountName string `env:"PANEFS_AZURE_ACCOUNT_NAME"`
	AzureAccountKey  string `env:"PANEFS_AZURE_ACCOUNT_KEY"`
	AzureEndpoint    string `env:"PANEFS_AZURE_ENDPOINT"` // Optional custom endpoint, %s is replaced by the account

	// SFTP driver configuration (host, user and password come from the location)
	SFTPPrivateKey     string `env:"PANEFS_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPKnownHosts     string `env:"PANEFS_SFTP_KNOWN_HOSTS"` // Empty disables host key checking
	SFTPTimeoutSeconds int    `env:"PANEFS_SFTP_TIMEOUT_SECONDS,default:30"`

	// FTP driver configuration
	FTPTimeoutSeconds int `env:"PANEFS_FTP_TIMEOUT_SECONDS,default:30"`

	// Password tried for encrypted rar and 7z containers
	ArchivePassword string `env:"PANEFS_ARCHIVE_PASSWORD"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfigWithPrefix loads config with every variable name prefixed,
// e.g. "TEST_" reads TEST_PANEFS_LOG_LEVEL.
func GetConfigWithPrefix(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}
