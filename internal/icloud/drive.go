package icloud

import (
	"context"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/icebox-backup/icebox/internal/backup"
)

const (
	rootDriveID = "FOLDER::com.apple.CloudDocs::root"

	// itemDetailCacheSize bounds the memo of item-detail lookups kept per
	// session; re-resolution bursts tend to hit the same handful of ids.
	itemDetailCacheSize = 512
)

// driveItem is the wire shape of one entry in a folder listing.
type driveItem struct {
	DriveWSID    string      `json:"drivewsid"`
	DocWSID      string      `json:"docwsid"`
	ItemID       string      `json:"item_id"`
	Zone         string      `json:"zone"`
	Name         string      `json:"name"`
	Extension    string      `json:"extension"`
	Type         string      `json:"type"`
	Size         int64       `json:"size"`
	DateModified string      `json:"dateModified"`
	Etag         string      `json:"etag"`
	ShareID      *wireShare  `json:"shareID"`
	Items        []driveItem `json:"items"`
}

type wireShare struct {
	ShareName  string `json:"shareName"`
	RecordName string `json:"recordName"`
	ZoneID     struct {
		ZoneName        string `json:"zoneName"`
		OwnerRecordName string `json:"ownerRecordName"`
	} `json:"zoneID"`
}

func (w *wireShare) descriptor() *backup.ShareDescriptor {
	if w == nil {
		return nil
	}
	return &backup.ShareDescriptor{
		ShareName:   w.ShareName,
		RecordName:  w.RecordName,
		ZoneName:    w.ZoneID.ZoneName,
		OwnerRecord: w.ZoneID.OwnerRecordName,
	}
}

func (it *driveItem) filename() string {
	if it.Extension != "" {
		return it.Name + "." + it.Extension
	}
	return it.Name
}

func (it *driveItem) toNode() *backup.RemoteNode {
	kind := backup.KindFile
	if it.Type == "FOLDER" || it.Type == "APP_LIBRARY" {
		kind = backup.KindFolder
	}

	var modified time.Time
	if it.DateModified != "" {
		if t, err := time.Parse(time.RFC3339, it.DateModified); err == nil {
			modified = t
		}
	}

	zone := it.Zone
	if zone == "" {
		zone = backup.DefaultZone
	}

	return &backup.RemoteNode{
		Name:     it.filename(),
		Kind:     kind,
		Size:     it.Size,
		Modified: modified,
		Etag:     it.Etag,
		DocID:    it.DocWSID,
		ItemID:   it.ItemID,
		DriveID:  it.DriveWSID,
		Zone:     zone,
		Share:    it.ShareID.descriptor(),
	}
}

// downloadToken is the document service's answer to download/by_id.
type downloadToken struct {
	DataToken struct {
		URL string `json:"url"`
	} `json:"data_token"`
	PackageToken struct {
		URL string `json:"url"`
	} `json:"package_token"`
}

func (t *downloadToken) url() string {
	if t.DataToken.URL != "" {
		return t.DataToken.URL
	}
	return t.PackageToken.URL
}

// DriveService implements backup.DriveAPI against the drivews/docws
// endpoints.
type DriveService struct {
	session *Session
	details *lru.Cache[string, *backup.RemoteNode]
}

func newDriveService(s *Session) *DriveService {
	cache, _ := lru.New[string, *backup.RemoteNode](itemDetailCacheSize)
	return &DriveService{session: s, details: cache}
}

var _ backup.DriveAPI = (*DriveService)(nil)

// Owner returns the account's own record name, the single authoritative
// ownership signal.
func (d *DriveService) Owner(ctx context.Context) (string, error) {
	if d.session.owner == "" {
		return "", fmt.Errorf("session for %s has no owner record", d.session.identity)
	}
	return d.session.owner, nil
}

// retrieveItem fetches details (including children) for one drive id. The
// raw id is passed through untouched, so callers can look items up by any
// identifier form without the folder/file prefix rewriting the listing
// helpers perform.
func (d *DriveService) retrieveItem(ctx context.Context, driveID string) (*driveItem, error) {
	var items []driveItem
	resp, err := d.session.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal([]map[string]any{{
			"drivewsid":   driveID,
			"partialData": false,
		}}).
		SetSuccessResult(&items).
		Post(d.session.services.DriveWS + "/retrieveItemDetailsInFolders")
	if err != nil {
		return nil, requestError("retrieve item details", err)
	}
	if resp.IsErrorState() {
		return nil, statusError("retrieve item details", resp)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("retrieve item details: empty response for %s: %w", driveID, backup.ErrNotFound)
	}
	return &items[0], nil
}

func (d *DriveService) Root(ctx context.Context) (*backup.RemoteNode, error) {
	item, err := d.retrieveItem(ctx, rootDriveID)
	if err != nil {
		return nil, err
	}
	return item.toNode(), nil
}

func (d *DriveService) Children(ctx context.Context, node *backup.RemoteNode) ([]*backup.RemoteNode, error) {
	item, err := d.retrieveItem(ctx, node.DriveID)
	if err != nil {
		return nil, err
	}
	children := make([]*backup.RemoteNode, 0, len(item.Items))
	for i := range item.Items {
		children = append(children, item.Items[i].toNode())
	}
	return children, nil
}

func (d *DriveService) Child(ctx context.Context, parent *backup.RemoteNode, name string) (*backup.RemoteNode, error) {
	children, err := d.Children(ctx, parent)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Name == name {
			return child, nil
		}
	}
	return nil, fmt.Errorf("no item %q under %q: %w", name, parent.Name, backup.ErrNotFound)
}

// ItemDetail looks a node up by a raw addressing id.
func (d *DriveService) ItemDetail(ctx context.Context, itemID string) (*backup.RemoteNode, error) {
	if node, ok := d.details.Get(itemID); ok {
		return node, nil
	}
	item, err := d.retrieveItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	node := item.toNode()
	d.details.Add(itemID, node)
	return node, nil
}

// downloadStream resolves a download token in the given zone and opens
// the content URL as a stream.
func (d *DriveService) downloadStream(ctx context.Context, zone, docID string, extra map[string]string) (io.ReadCloser, error) {
	var token downloadToken
	r := d.session.client.R().
		SetContext(ctx).
		SetQueryParam("document_id", docID).
		SetSuccessResult(&token)
	for k, v := range extra {
		r.SetQueryParam(k, v)
	}

	resp, err := r.Get(fmt.Sprintf("%s/ws/%s/download/by_id", d.session.services.DocWS, zone))
	if err != nil {
		return nil, requestError("resolve download", err)
	}
	if resp.IsErrorState() {
		return nil, statusError("resolve download", resp)
	}

	url := token.url()
	if url == "" {
		return nil, fmt.Errorf("resolve download: no content url for %s: %w", docID, backup.ErrNotFound)
	}
	return d.openURL(ctx, url)
}

// openURL streams a resolved content URL without buffering the body.
func (d *DriveService) openURL(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := d.session.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(url)
	if err != nil {
		return nil, requestError("open content", err)
	}
	if resp.IsErrorState() {
		resp.Body.Close()
		return nil, statusError("open content", resp)
	}
	return resp.Body, nil
}

func (d *DriveService) zoneOf(node *backup.RemoteNode) string {
	if node.Zone != "" {
		return node.Zone
	}
	return backup.DefaultZone
}

func (d *DriveService) Open(ctx context.Context, node *backup.RemoteNode) (io.ReadCloser, error) {
	return d.downloadStream(ctx, d.zoneOf(node), node.DocID, nil)
}

func (d *DriveService) OpenInZone(ctx context.Context, node *backup.RemoteNode, zone string) (io.ReadCloser, error) {
	return d.downloadStream(ctx, zone, node.DocID, nil)
}

// OpenWithShareContext retries a shared-folder download carrying the full
// flattened share descriptor. If the document service still reports not
// found, the content is resolved through a CloudKit record lookup in the
// owner's zone.
func (d *DriveService) OpenWithShareContext(ctx context.Context, node *backup.RemoteNode) (io.ReadCloser, error) {
	if node.Share == nil {
		return nil, fmt.Errorf("open with share context: node %q has no share descriptor", node.Name)
	}

	zone := node.Share.Zone(d.zoneOf(node))
	rc, err := d.downloadStream(ctx, zone, node.DocID, node.Share.Params())
	if err == nil {
		return rc, nil
	}

	url, ckErr := d.cloudKitDownloadURL(ctx, node.DocID, node.Share)
	if ckErr != nil {
		return nil, err
	}
	return d.openURL(ctx, url)
}

func (d *DriveService) OpenByID(ctx context.Context, node *backup.RemoteNode, docID string) (io.ReadCloser, error) {
	return d.downloadStream(ctx, d.zoneOf(node), docID, nil)
}
