package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gobeaver/panefs"
)

const (
	// Scheme is the plain FTP scheme: ftp://[user[:password]@]host[:port]/path.
	Scheme = "ftp"
	// SchemeTLS upgrades the control connection with AUTH TLS.
	SchemeTLS = "ftps"
)

// Register adds the ftp and ftps schemes to r. Credentials come from the
// location, the timeout from cfg.
func Register(r *panefs.Registry, options ...AdapterOption) {
	r.Register(Scheme, factory(false, options))
	r.Register(SchemeTLS, factory(true, options))
}

func factory(secure bool, options []AdapterOption) panefs.Factory {
	return func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		if realm.Host == "" {
			return nil, fmt.Errorf("FTP host is required")
		}

		ftpConfig := Config{
			Host:     realm.Host,
			Port:     realm.Port,
			Username: realm.User,
			Password: realm.Password,
			Timeout:  time.Duration(cfg.FTPTimeoutSeconds) * time.Second,
		}
		if secure {
			ftpConfig.TLSConfig = &tls.Config{ServerName: realm.Host, MinVersion: tls.VersionTLS12}
		}
		return New(ctx, ftpConfig, options...)
	}
}
