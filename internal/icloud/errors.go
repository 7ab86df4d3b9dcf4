package icloud

import (
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"

	"github.com/icebox-backup/icebox/internal/backup"
)

// statusError converts an HTTP error response into an error the engine
// can classify. 404s wrap backup.ErrNotFound so the download resolver's
// fallback chain fires for exactly that class and nothing else.
func statusError(op string, resp *req.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %s: %w", op, resp.Status, backup.ErrNotFound)
	}
	return fmt.Errorf("%s: %s", op, resp.Status)
}

// requestError wraps a transport-level failure.
func requestError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
