package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// DownloadResolver obtains a byte stream for one remote file. The default
// download path works for everything the account owns outright; files
// inside accepted shared folders intermittently come back "not found"
// because the listing reports them under the caller's zone while their
// content lives in the owner's. For that error class, and only that class,
// the resolver walks an ordered fallback chain and stops at the first
// stream it gets. Auth, network, and server errors propagate immediately:
// retrying those would mask real failures.
type DownloadResolver struct {
	api DriveAPI
}

func NewDownloadResolver(api DriveAPI) *DownloadResolver {
	return &DownloadResolver{api: api}
}

// Open returns the node's content. When every fallback is exhausted the
// original error is returned, not the last fallback's.
func (r *DownloadResolver) Open(ctx context.Context, node *RemoteNode) (io.ReadCloser, error) {
	rc, origErr := r.api.Open(ctx, node)
	if origErr == nil {
		return rc, nil
	}
	if !errors.Is(origErr, ErrNotFound) {
		return nil, origErr
	}

	slog.Debug("download not found, trying fallbacks", "name", node.Name, "shared", node.IsShared())

	// 1. shared-folder content: retry against the owner-qualified zone
	if node.IsShared() {
		zone := node.Share.Zone(DefaultZone)
		if rc, err := r.api.OpenInZone(ctx, node, zone); err == nil {
			slog.Debug("download recovered via owner zone", "name", node.Name, "zone", zone)
			return rc, nil
		}
	}

	// 2. re-resolve addressing via a direct item-detail lookup and retry
	// with the refreshed id and zone
	if rc := r.openRefreshed(ctx, node); rc != nil {
		return rc, nil
	}

	// 3. shared-folder content: retry carrying the full share context
	if node.IsShared() {
		if rc, err := r.api.OpenWithShareContext(ctx, node); err == nil {
			slog.Debug("download recovered via share context", "name", node.Name)
			return rc, nil
		}
	}

	// 4. alternate identifier forms: full composite id, then the bare id
	// after its last namespace separator
	for _, id := range node.CandidateIDs() {
		if rc, err := r.api.OpenByID(ctx, node, id); err == nil {
			slog.Debug("download recovered via alternate id", "name", node.Name, "id", id)
			return rc, nil
		}
	}

	return nil, origErr
}

func (r *DownloadResolver) openRefreshed(ctx context.Context, node *RemoteNode) io.ReadCloser {
	lookupID := node.ItemID
	if lookupID == "" {
		lookupID = node.BareID()
	}
	if lookupID == "" {
		return nil
	}

	fresh, err := r.api.ItemDetail(ctx, lookupID)
	if err != nil || fresh == nil {
		return nil
	}

	refreshed := *node
	if fresh.DocID != "" {
		refreshed.DocID = fresh.DocID
	}
	if fresh.Zone != "" {
		refreshed.Zone = fresh.Zone
	}
	if fresh.Share != nil {
		refreshed.Share = fresh.Share
	}
	// identical addressing cannot produce a different outcome
	if refreshed.DocID == node.DocID && refreshed.Zone == node.Zone && fresh.Share == nil {
		return nil
	}

	rc, err := r.api.Open(ctx, &refreshed)
	if err != nil {
		return nil
	}
	slog.Debug("download recovered via item detail", "name", node.Name, "doc", refreshed.DocID)
	return rc
}
