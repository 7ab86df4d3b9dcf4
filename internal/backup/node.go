package backup

import (
	"context"
	"io"
	"strings"
	"time"
)

// NodeKind discriminates files from folders in a remote listing.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// ShareDescriptor carries the provider's share/zone addressing for a node
// that lives in (or under) a shared folder. The engines never interpret it;
// only the download resolver and the provider do.
type ShareDescriptor struct {
	ShareName   string `json:"shareName,omitempty"`
	RecordName  string `json:"recordName,omitempty"`
	ZoneName    string `json:"zoneName,omitempty"`
	OwnerRecord string `json:"ownerRecordName,omitempty"`
}

// DefaultZone is the provider's zone for unshared documents.
const DefaultZone = "com.apple.CloudDocs"

// Zone returns the zone the share lives in, owner-qualified when an owner
// record is present ("zoneName:ownerRecordName").
func (s *ShareDescriptor) Zone(fallback string) string {
	if s == nil || s.ZoneName == "" {
		return fallback
	}
	if s.OwnerRecord == "" {
		return s.ZoneName
	}
	return s.ZoneName + ":" + s.OwnerRecord
}

// Params flattens the descriptor into request parameters the way the
// document service expects them, including the legacy aliases some
// endpoints still require.
func (s *ShareDescriptor) Params() map[string]string {
	p := make(map[string]string, 7)
	if s == nil {
		return p
	}
	if s.ShareName != "" {
		p["shareName"] = s.ShareName
	}
	if s.RecordName != "" {
		p["recordName"] = s.RecordName
	}
	if s.ZoneName != "" {
		p["zoneID.zoneName"] = s.ZoneName
		p["zoneName"] = s.ZoneName
	}
	if s.OwnerRecord != "" {
		p["zoneID.ownerRecordName"] = s.OwnerRecord
		p["ownerRecordName"] = s.OwnerRecord
	}
	return p
}

// RemoteNode is one file or folder in the remote tree, as reported by the
// capability interface. Engines treat it as read-only.
type RemoteNode struct {
	Name     string
	Kind     NodeKind
	Size     int64
	Modified time.Time

	// Etag is the change token: folder etags drive subtree pruning, file
	// etags are informational.
	Etag string

	// Provider addressing. DocID is the document id used by the default
	// download path, ItemID the item-service id, DriveID the full
	// composite id ("KIND::zone::uuid"). Zone is the zone the node was
	// listed from.
	DocID   string
	ItemID  string
	DriveID string
	Zone    string

	// Share is set when the node belongs to a shared folder.
	Share *ShareDescriptor
}

func (n *RemoteNode) IsFolder() bool { return n.Kind == KindFolder }

// IsShared reports whether the node carries shared-folder addressing.
func (n *RemoteNode) IsShared() bool { return n.Share != nil }

// ForeignOwned reports whether the node's share descriptor names an owner
// other than the given identity record.
func (n *RemoteNode) ForeignOwned(ownerRecord string) bool {
	return n.Share != nil && n.Share.OwnerRecord != "" && n.Share.OwnerRecord != ownerRecord
}

// BareID extracts the identifier after the last namespace separator of the
// composite drive id. Returns "" when there is none.
func (n *RemoteNode) BareID() string {
	if n.DriveID == "" {
		return ""
	}
	if i := strings.LastIndex(n.DriveID, "::"); i >= 0 {
		return n.DriveID[i+2:]
	}
	return ""
}

// CandidateIDs returns the node's alternate identifier forms in retry
// order, deduplicated: the full composite id, then the bare trailing id.
// The default DocID is excluded because the caller has already tried it.
func (n *RemoteNode) CandidateIDs() []string {
	var out []string
	seen := map[string]bool{n.DocID: true, "": true}
	for _, id := range []string{n.DriveID, n.BareID()} {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// DriveAPI is the remote capability surface consumed by the Drive engine
// and the download resolver. Implementations own their I/O timeouts.
type DriveAPI interface {
	// Owner returns the authoritative owner record of the authenticated
	// account, used to tell own shared folders from foreign ones.
	Owner(ctx context.Context) (string, error)

	Root(ctx context.Context) (*RemoteNode, error)
	Children(ctx context.Context, node *RemoteNode) ([]*RemoteNode, error)
	Child(ctx context.Context, parent *RemoteNode, name string) (*RemoteNode, error)

	// ItemDetail looks a node up by a raw addressing id, bypassing any
	// folder/file id-format rewriting the listing path performs.
	ItemDetail(ctx context.Context, itemID string) (*RemoteNode, error)

	// Open returns the node's content via the default download path.
	Open(ctx context.Context, node *RemoteNode) (io.ReadCloser, error)
	// OpenInZone retries the download against an explicit zone address.
	OpenInZone(ctx context.Context, node *RemoteNode, zone string) (io.ReadCloser, error)
	// OpenWithShareContext retries the download carrying the flattened
	// share descriptor parameters.
	OpenWithShareContext(ctx context.Context, node *RemoteNode) (io.ReadCloser, error)
	// OpenByID retries the download with an alternate document id.
	OpenByID(ctx context.Context, node *RemoteNode, docID string) (io.ReadCloser, error)
}

// PhotoAsset is one record from a remote photo library.
type PhotoAsset struct {
	// ID is the stable remote identifier (record name).
	ID       string
	Filename string
	Size     int64

	// ContentHash is the original-resolution fingerprint; ChangeTag the
	// record change tag. Either may be empty.
	ContentHash string
	ChangeTag   string

	// Candidate dates, best first. Zero values mean "absent".
	AssetDate time.Time
	Created   time.Time
	AddedDate time.Time

	// DownloadURL is provider addressing metadata, opaque to the engine.
	DownloadURL string
}

// Fingerprint returns the asset's change token: the content hash when
// present, else the change tag, else "".
func (a *PhotoAsset) Fingerprint() string {
	if a.ContentHash != "" {
		return a.ContentHash
	}
	return a.ChangeTag
}

// BestDate picks the first available of the asset's date fields.
func (a *PhotoAsset) BestDate() (time.Time, bool) {
	for _, t := range []time.Time{a.AssetDate, a.Created, a.AddedDate} {
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// PhotoIterator yields assets lazily; the provider may fetch further pages
// between calls. Next returns io.EOF when the library is exhausted.
type PhotoIterator interface {
	Next(ctx context.Context) (*PhotoAsset, error)
}

// PhotosAPI is the remote capability surface for photo libraries.
type PhotosAPI interface {
	// All iterates the personal library.
	All(ctx context.Context) (PhotoIterator, error)
	// Library iterates a shared library by its zone identifier.
	Library(ctx context.Context, id string) (PhotoIterator, error)
	// Open streams the original content of an asset.
	Open(ctx context.Context, asset *PhotoAsset) (io.ReadCloser, error)
}

// SessionProvider resolves the remote capabilities for an identity. A
// missing session is reported with ErrNoSession.
type SessionProvider interface {
	Drive(ctx context.Context, identity string) (DriveAPI, error)
	Photos(ctx context.Context, identity string) (PhotosAPI, error)
}
