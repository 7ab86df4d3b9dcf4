package icloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/icebox-backup/icebox/internal/backup"
)

const (
	// personalZone is the photo library zone every account has.
	personalZone = "PrimarySync"

	photoPageSize = 200
)

// PhotosService implements backup.PhotosAPI against the photo record
// database.
type PhotosService struct {
	session *Session
}

func newPhotosService(s *Session) *PhotosService {
	return &PhotosService{session: s}
}

var _ backup.PhotosAPI = (*PhotosService)(nil)

func (p *PhotosService) All(ctx context.Context) (backup.PhotoIterator, error) {
	return p.iterate(ctx, personalZone)
}

func (p *PhotosService) Library(ctx context.Context, id string) (backup.PhotoIterator, error) {
	return p.iterate(ctx, id)
}

func (p *PhotosService) iterate(ctx context.Context, zone string) (backup.PhotoIterator, error) {
	if p.session.services.Photos == "" {
		return nil, fmt.Errorf("photos service: no service root in session for %s", p.session.identity)
	}
	return &assetIterator{svc: p, zone: zone}, nil
}

// Open streams the original-resolution content of an asset.
func (p *PhotosService) Open(ctx context.Context, asset *backup.PhotoAsset) (io.ReadCloser, error) {
	if asset.DownloadURL == "" {
		return nil, fmt.Errorf("photos service: asset %s has no download url: %w", asset.ID, backup.ErrNotFound)
	}
	resp, err := p.session.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(asset.DownloadURL)
	if err != nil {
		return nil, requestError("open asset", err)
	}
	if resp.IsErrorState() {
		resp.Body.Close()
		return nil, statusError("open asset", resp)
	}
	return resp.Body, nil
}

// ckField is one CloudKit record field. Values arrive as strings, numbers
// or nested maps depending on the field type.
type ckField struct {
	Value any `json:"value"`
}

type ckRecord struct {
	RecordName      string             `json:"recordName"`
	RecordType      string             `json:"recordType"`
	RecordChangeTag string             `json:"recordChangeTag"`
	Fields          map[string]ckField `json:"fields"`
}

func (r *ckRecord) str(name string) string {
	s, _ := r.Fields[name].Value.(string)
	return s
}

func (r *ckRecord) num(name string) float64 {
	n, _ := r.Fields[name].Value.(float64)
	return n
}

// msTime converts a millisecond epoch field; zero stays zero.
func (r *ckRecord) msTime(name string) time.Time {
	ms := r.num(name)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// res extracts an asset resource value (size, checksum, download url).
func (r *ckRecord) res(name string) (size int64, checksum, url string) {
	m, _ := r.Fields[name].Value.(map[string]any)
	if m == nil {
		return 0, "", ""
	}
	if v, ok := m["size"].(float64); ok {
		size = int64(v)
	}
	checksum, _ = m["fileChecksum"].(string)
	url, _ = m["downloadURL"].(string)
	return size, checksum, url
}

// assetIterator pages through a library zone lazily. Each page interleaves
// CPLAsset records with the CPLMaster records they reference; the two are
// merged into one PhotoAsset per asset record.
type assetIterator struct {
	svc  *PhotosService
	zone string

	rank int
	buf  []*backup.PhotoAsset
	pos  int
	done bool
}

func (it *assetIterator) Next(ctx context.Context) (*backup.PhotoAsset, error) {
	for it.pos >= len(it.buf) {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	a := it.buf[it.pos]
	it.pos++
	return a, nil
}

// Release drops references to assets already handed out, so the engine
// can bound memory across very large libraries.
func (it *assetIterator) Release() {
	for i := 0; i < it.pos && i < len(it.buf); i++ {
		it.buf[i] = nil
	}
}

func (it *assetIterator) fetchPage(ctx context.Context) error {
	var out struct {
		Records []ckRecord `json:"records"`
	}
	resp, err := it.svc.session.client.R().
		SetContext(ctx).
		SetQueryParam("remapEnums", "true").
		SetBodyJsonMarshal(map[string]any{
			"query": map[string]any{
				"recordType": "CPLAssetAndMasterByAddedDate",
				"filterBy": []map[string]any{
					{
						"fieldName":  "startRank",
						"comparator": "EQUALS",
						"fieldValue": map[string]any{"type": "INT64", "value": it.rank},
					},
					{
						"fieldName":  "direction",
						"comparator": "EQUALS",
						"fieldValue": map[string]any{"type": "STRING", "value": "ASCENDING"},
					},
				},
			},
			"resultsLimit": photoPageSize * 2,
			"zoneID":       map[string]string{"zoneName": it.zone},
		}).
		SetSuccessResult(&out).
		Post(it.svc.session.services.Photos + "/database/1/com.apple.photos/production/private/records/query")
	if err != nil {
		return requestError("query photo records", err)
	}
	if resp.IsErrorState() {
		return statusError("query photo records", resp)
	}

	masters := make(map[string]*ckRecord)
	var assets []*ckRecord
	for i := range out.Records {
		rec := &out.Records[i]
		switch rec.RecordType {
		case "CPLMaster":
			masters[rec.RecordName] = rec
		case "CPLAsset":
			assets = append(assets, rec)
		}
	}

	for _, asset := range assets {
		it.buf = append(it.buf, mergeAsset(asset, masters))
	}

	it.rank += len(assets)
	if len(assets) < photoPageSize {
		it.done = true
	}
	return nil
}

// mergeAsset combines a CPLAsset record with its CPLMaster into one asset.
// Content metadata lives on the master; dates and the change tag on the
// asset record.
func mergeAsset(asset *ckRecord, masters map[string]*ckRecord) *backup.PhotoAsset {
	out := &backup.PhotoAsset{
		ID:        asset.RecordName,
		ChangeTag: asset.RecordChangeTag,
		AssetDate: asset.msTime("assetDate"),
		AddedDate: asset.msTime("addedDate"),
	}

	var master *ckRecord
	if ref, ok := asset.Fields["masterRef"].Value.(map[string]any); ok {
		if name, ok := ref["recordName"].(string); ok {
			master = masters[name]
		}
	}
	if master != nil {
		if enc := master.str("filenameEnc"); enc != "" {
			if raw, err := base64.StdEncoding.DecodeString(enc); err == nil {
				out.Filename = string(raw)
			}
		}
		out.Created = master.msTime("originalCreationDate")
		size, checksum, url := master.res("resOriginalRes")
		out.Size = size
		out.ContentHash = checksum
		out.DownloadURL = url
	}

	if out.Filename == "" {
		out.Filename = asset.RecordName
	}
	return out
}
