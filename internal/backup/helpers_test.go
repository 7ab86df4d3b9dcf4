package backup

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// fakeDriveAPI is an in-memory DriveAPI. Content maps are keyed by the id
// each open path receives; a missing key reports ErrNotFound so resolver
// fallbacks can be scripted per test.
type fakeDriveAPI struct {
	owner    string
	root     *RemoteNode
	children map[string][]*RemoteNode

	content      map[string]string // Open, by DocID
	zoneContent  map[string]string // OpenInZone, by "zone|docID"
	shareContent map[string]string // OpenWithShareContext, by DocID
	idContent    map[string]string // OpenByID, by alternate id
	details      map[string]*RemoteNode

	openErr map[string]error // per-DocID override for Open
	listErr map[string]error // per-DriveID override for Children

	trace     []string
	listCalls map[string]int
}

func newFakeDriveAPI(owner string) *fakeDriveAPI {
	return &fakeDriveAPI{
		owner:        owner,
		root:         &RemoteNode{Name: "root", Kind: KindFolder, DriveID: "FOLDER::com.apple.CloudDocs::root"},
		children:     map[string][]*RemoteNode{},
		content:      map[string]string{},
		zoneContent:  map[string]string{},
		shareContent: map[string]string{},
		idContent:    map[string]string{},
		details:      map[string]*RemoteNode{},
		openErr:      map[string]error{},
		listErr:      map[string]error{},
		listCalls:    map[string]int{},
	}
}

func (f *fakeDriveAPI) record(call string) { f.trace = append(f.trace, call) }

func stream(content string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(content))
}

func (f *fakeDriveAPI) Owner(ctx context.Context) (string, error) {
	return f.owner, nil
}

func (f *fakeDriveAPI) Root(ctx context.Context) (*RemoteNode, error) {
	return f.root, nil
}

func (f *fakeDriveAPI) Children(ctx context.Context, node *RemoteNode) ([]*RemoteNode, error) {
	f.listCalls[node.DriveID]++
	if err, ok := f.listErr[node.DriveID]; ok {
		return nil, err
	}
	return f.children[node.DriveID], nil
}

func (f *fakeDriveAPI) Child(ctx context.Context, parent *RemoteNode, name string) (*RemoteNode, error) {
	for _, child := range f.children[parent.DriveID] {
		if child.Name == name {
			return child, nil
		}
	}
	return nil, fmt.Errorf("no child %q: %w", name, ErrNotFound)
}

func (f *fakeDriveAPI) ItemDetail(ctx context.Context, itemID string) (*RemoteNode, error) {
	f.record("ItemDetail:" + itemID)
	if node, ok := f.details[itemID]; ok {
		return node, nil
	}
	return nil, fmt.Errorf("no item %q: %w", itemID, ErrNotFound)
}

func (f *fakeDriveAPI) Open(ctx context.Context, node *RemoteNode) (io.ReadCloser, error) {
	f.record("Open:" + node.DocID)
	if err, ok := f.openErr[node.DocID]; ok {
		return nil, err
	}
	if c, ok := f.content[node.DocID]; ok {
		return stream(c), nil
	}
	return nil, fmt.Errorf("document %q: %w", node.DocID, ErrNotFound)
}

func (f *fakeDriveAPI) OpenInZone(ctx context.Context, node *RemoteNode, zone string) (io.ReadCloser, error) {
	f.record("OpenInZone:" + zone)
	if c, ok := f.zoneContent[zone+"|"+node.DocID]; ok {
		return stream(c), nil
	}
	return nil, fmt.Errorf("zone %q: %w", zone, ErrNotFound)
}

func (f *fakeDriveAPI) OpenWithShareContext(ctx context.Context, node *RemoteNode) (io.ReadCloser, error) {
	f.record("OpenWithShareContext:" + node.DocID)
	if c, ok := f.shareContent[node.DocID]; ok {
		return stream(c), nil
	}
	return nil, fmt.Errorf("share context %q: %w", node.DocID, ErrNotFound)
}

func (f *fakeDriveAPI) OpenByID(ctx context.Context, node *RemoteNode, docID string) (io.ReadCloser, error) {
	f.record("OpenByID:" + docID)
	if c, ok := f.idContent[docID]; ok {
		return stream(c), nil
	}
	return nil, fmt.Errorf("id %q: %w", docID, ErrNotFound)
}

var _ DriveAPI = (*fakeDriveAPI)(nil)
