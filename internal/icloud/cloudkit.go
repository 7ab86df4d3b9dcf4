package icloud

import (
	"context"
	"fmt"
	"regexp"

	"github.com/icebox-backup/icebox/internal/backup"
)

// serviceRootRe matches the per-partition drive/doc service roots, e.g.
// "https://p123-docws.icloud.com:443". The partition prefix carries over
// to the CloudKit database host.
var serviceRootRe = regexp.MustCompile(`^https://(p\d+)-(drivews|docws)\.icloud\.com(:\d+)?$`)

// DeriveDatabaseURL derives the ckdatabasews root from a drivews or docws
// service root, for accounts whose session predates the field. Returns ""
// when the root has an unexpected shape.
func DeriveDatabaseURL(serviceRoot string) string {
	m := serviceRootRe.FindStringSubmatch(serviceRoot)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("https://%s-ckdatabasews.icloud.com%s", m[1], m[3])
}

type ckLookupResponse struct {
	Records []struct {
		RecordName string `json:"recordName"`
		Fields     struct {
			FileContent struct {
				Value struct {
					DownloadURL string `json:"downloadURL"`
					Size        int64  `json:"size"`
				} `json:"value"`
			} `json:"fileContent"`
		} `json:"fields"`
		ServerErrorCode string `json:"serverErrorCode"`
	} `json:"records"`
}

// databaseURL resolves the CloudKit database root, deriving it from the
// other service roots when the session lacks one.
func (d *DriveService) databaseURL() string {
	if d.session.services.CKDBWS != "" {
		return d.session.services.CKDBWS
	}
	if u := DeriveDatabaseURL(d.session.services.DriveWS); u != "" {
		return u
	}
	return DeriveDatabaseURL(d.session.services.DocWS)
}

// cloudKitDownloadURL resolves a document's content URL through a CloudKit
// record lookup in the share owner's zone. Owner-qualified zone addressing
// is mandatory here; without the owner record the lookup would land in the
// caller's own database and miss.
func (d *DriveService) cloudKitDownloadURL(ctx context.Context, docID string, share *backup.ShareDescriptor) (string, error) {
	if share == nil || share.OwnerRecord == "" {
		return "", fmt.Errorf("cloudkit lookup: no owner record for document %s", docID)
	}
	base := d.databaseURL()
	if base == "" {
		return "", fmt.Errorf("cloudkit lookup: no database service root")
	}

	zoneName := share.ZoneName
	if zoneName == "" {
		zoneName = backup.DefaultZone
	}

	var out ckLookupResponse
	resp, err := d.session.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]any{
			"records": []map[string]any{{"recordName": docID}},
			"zoneID": map[string]string{
				"zoneName":        zoneName,
				"ownerRecordName": share.OwnerRecord,
			},
		}).
		SetSuccessResult(&out).
		Post(base + "/database/1/com.apple.clouddocs/production/private/records/lookup")
	if err != nil {
		return "", requestError("cloudkit lookup", err)
	}
	if resp.IsErrorState() {
		return "", statusError("cloudkit lookup", resp)
	}

	for _, rec := range out.Records {
		if rec.ServerErrorCode != "" {
			continue
		}
		if url := rec.Fields.FileContent.Value.DownloadURL; url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("cloudkit lookup: no content url for %s: %w", docID, backup.ErrNotFound)
}
