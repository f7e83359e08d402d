package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/netx"
)

// NamePlaceholder in an upload URL is replaced by the snapshot file name.
const NamePlaceholder = "{name}"

// HTTPArchiver PUTs snapshots to a presigned URL.
type HTTPArchiver struct {
	url    string
	client *http.Client
	clock  common.Clock
}

func NewHTTPArchiver(uploadURL string, client *http.Client, clock common.Clock) (*HTTPArchiver, error) {
	if _, err := url.Parse(uploadURL); err != nil || uploadURL == "" {
		return nil, fmt.Errorf("invalid upload url %q", uploadURL)
	}
	return &HTTPArchiver{url: uploadURL, client: client, clock: clock}, nil
}

func (a *HTTPArchiver) Archive(ctx context.Context, db *sql.DB, label string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "regifarm-archive-")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	name := snapshotName(label, a.clock)
	path := filepath.Join(tmpDir, name)
	if err := vacuumInto(ctx, db, path); err != nil {
		return "", err
	}

	target := strings.ReplaceAll(a.url, NamePlaceholder, name)
	if err := netx.UploadFile(ctx, a.client, target, path); err != nil {
		return "", err
	}
	// The query of a presigned URL carries the signature; keep it out of logs.
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return target, nil
}
