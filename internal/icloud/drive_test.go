package icloud

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebox-backup/icebox/internal/backup"
)

func TestDriveItemToNode(t *testing.T) {
	t.Run("file with extension", func(t *testing.T) {
		item := driveItem{
			DriveWSID:    "FILE::com.apple.CloudDocs::uuid-1",
			DocWSID:      "doc-1",
			ItemID:       "item-1",
			Name:         "report",
			Extension:    "pdf",
			Type:         "FILE",
			Size:         1234,
			Etag:         "v5",
			DateModified: "2023-05-06T12:00:00Z",
		}

		node := item.toNode()
		assert.Equal(t, "report.pdf", node.Name)
		assert.Equal(t, backup.KindFile, node.Kind)
		assert.EqualValues(t, 1234, node.Size)
		assert.Equal(t, "v5", node.Etag)
		assert.Equal(t, backup.DefaultZone, node.Zone, "missing zone falls back to the default")
		assert.Equal(t, "uuid-1", node.BareID())
		assert.Equal(t, time.Date(2023, 5, 6, 12, 0, 0, 0, time.UTC), node.Modified)
		assert.False(t, node.IsShared())
	})

	t.Run("folder kinds", func(t *testing.T) {
		assert.Equal(t, backup.KindFolder, (&driveItem{Type: "FOLDER"}).toNode().Kind)
		assert.Equal(t, backup.KindFolder, (&driveItem{Type: "APP_LIBRARY"}).toNode().Kind)
		assert.Equal(t, backup.KindFile, (&driveItem{Type: "FILE"}).toNode().Kind)
	})

	t.Run("share descriptor carries the owner zone", func(t *testing.T) {
		raw := `{
			"drivewsid": "FOLDER::SharedZone::uuid-9",
			"name": "Team Docs",
			"type": "FOLDER",
			"zone": "SharedZone",
			"shareID": {
				"shareName": "token-abc",
				"recordName": "rec-9",
				"zoneID": {"zoneName": "SharedZone", "ownerRecordName": "_owner123"}
			}
		}`
		var item driveItem
		require.NoError(t, json.Unmarshal([]byte(raw), &item))

		node := item.toNode()
		require.True(t, node.IsShared())
		assert.Equal(t, "SharedZone:_owner123", node.Share.Zone(backup.DefaultZone))
		assert.True(t, node.ForeignOwned("_me"))
		assert.False(t, node.ForeignOwned("_owner123"))

		params := node.Share.Params()
		assert.Equal(t, "token-abc", params["shareName"])
		assert.Equal(t, "SharedZone", params["zoneID.zoneName"])
		assert.Equal(t, "_owner123", params["zoneID.ownerRecordName"])
		assert.Equal(t, "_owner123", params["ownerRecordName"])
	})
}

func TestDownloadTokenURL(t *testing.T) {
	var tok downloadToken
	tok.DataToken.URL = "https://cvws.icloud-content.com/file"
	assert.Equal(t, "https://cvws.icloud-content.com/file", tok.url())

	var pkg downloadToken
	pkg.PackageToken.URL = "https://cvws.icloud-content.com/pkg"
	assert.Equal(t, "https://cvws.icloud-content.com/pkg", pkg.url())

	assert.Equal(t, "", (&downloadToken{}).url())
}
