// Package netx holds small HTTP helpers that do not belong to the remote
// service client.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// UploadFile PUTs the file at path to url as an opaque octet stream. It is
// meant for presigned object-store URLs, so no credentials are attached.
// Any 2xx answer counts as success.
func UploadFile(ctx context.Context, client *http.Client, url, path string) error {
	if client == nil {
		client = http.DefaultClient
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
