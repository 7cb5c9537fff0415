package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/gobeaver/panefs"
)

// Scheme is the location scheme served by this package:
// azblob://[account:key@]container/blob.
const Scheme = "azblob"

// Register adds the azblob scheme to r. Account and key come from the
// location's user info, falling back to the configured ones.
func Register(r *panefs.Registry) {
	r.Register(Scheme, func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		account, key := cfg.AzureAccountName, cfg.AzureAccountKey
		if realm.User != "" {
			account, key = realm.User, realm.Password
		}
		if account == "" || key == "" {
			return nil, fmt.Errorf("azure account name and key are required")
		}
		if realm.Host == "" {
			return nil, fmt.Errorf("%w: azblob location needs a container", panefs.ErrInvalidName)
		}

		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL(cfg.AzureEndpoint, account), cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
		return New(client, realm.Host), nil
	})
}

// serviceURL builds the blob endpoint for account. A custom endpoint may
// contain %s for the account name (Azurite uses http://127.0.0.1:10000/%s).
func serviceURL(endpoint, account string) string {
	if endpoint == "" {
		return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	if strings.Contains(endpoint, "%s") {
		return fmt.Sprintf(endpoint, account)
	}
	return endpoint
}
