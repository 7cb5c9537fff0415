package azure

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/gobeaver/panefs"
)

var (
	_ panefs.FileSystem    = (*Adapter)(nil)
	_ panefs.CanRandomRead = (*Adapter)(nil)
	_ panefs.CanCopy       = (*Adapter)(nil)
	_ panefs.CanWatch      = (*Adapter)(nil)
)

func TestServiceURL(t *testing.T) {
	tests := []struct {
		endpoint, account, want string
	}{
		{"", "acct", "https://acct.blob.core.windows.net/"},
		{"http://127.0.0.1:10000/%s", "devstoreaccount1", "http://127.0.0.1:10000/devstoreaccount1"},
		{"https://blob.example.com/", "acct", "https://blob.example.com/"},
	}
	for _, tt := range tests {
		if got := serviceURL(tt.endpoint, tt.account); got != tt.want {
			t.Errorf("serviceURL(%q, %q) = %q, want %q", tt.endpoint, tt.account, got, tt.want)
		}
	}
}

func TestMapAzureError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"BlobNotFound", panefs.ErrNotExist},
		{"ContainerNotFound", panefs.ErrNotExist},
		{"BlobAlreadyExists", panefs.ErrExist},
		{"AuthorizationPermissionMismatch", panefs.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			respErr := &azcore.ResponseError{ErrorCode: tt.code, StatusCode: http.StatusNotFound}
			err := mapAzureError("stat", "/a", respErr)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	other := errors.New("boom")
	if err := mapAzureError("stat", "/a", other); !errors.Is(err, other) {
		t.Errorf("expected original error to be kept, got %v", err)
	}
}

func TestFileInfoAttrs(t *testing.T) {
	size := int64(3)
	info := fileInfo("/a.txt", &size, nil, nil)
	if !info.Has(panefs.AttrSize) || info.Has(panefs.AttrModTime) || info.Has(panefs.AttrOwner) {
		t.Errorf("unexpected attrs %b", info.Attrs)
	}
	if info.Size != 3 || info.Name != "a.txt" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestRegisterNeedsCredentials(t *testing.T) {
	r := panefs.NewRegistry()
	Register(r)
	defer r.Close()

	if _, err := r.Resolve(context.Background(), "azblob://container/a.txt"); err == nil {
		t.Error("expected error without account credentials")
	}
}
