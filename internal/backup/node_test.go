package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareDescriptorZone(t *testing.T) {
	t.Run("owner qualified", func(t *testing.T) {
		s := &ShareDescriptor{ZoneName: "SharedZone", OwnerRecord: "_abc"}
		assert.Equal(t, "SharedZone:_abc", s.Zone(DefaultZone))
	})

	t.Run("no owner", func(t *testing.T) {
		s := &ShareDescriptor{ZoneName: "SharedZone"}
		assert.Equal(t, "SharedZone", s.Zone(DefaultZone))
	})

	t.Run("fallback", func(t *testing.T) {
		assert.Equal(t, DefaultZone, (&ShareDescriptor{}).Zone(DefaultZone))
		var nilShare *ShareDescriptor
		assert.Equal(t, DefaultZone, nilShare.Zone(DefaultZone))
	})
}

func TestShareDescriptorParams(t *testing.T) {
	s := &ShareDescriptor{
		ShareName:   "token",
		RecordName:  "rec",
		ZoneName:    "SharedZone",
		OwnerRecord: "_abc",
	}
	p := s.Params()

	// both the nested form and the legacy aliases must be present
	assert.Equal(t, "SharedZone", p["zoneID.zoneName"])
	assert.Equal(t, "SharedZone", p["zoneName"])
	assert.Equal(t, "_abc", p["zoneID.ownerRecordName"])
	assert.Equal(t, "_abc", p["ownerRecordName"])
	assert.Equal(t, "token", p["shareName"])
	assert.Equal(t, "rec", p["recordName"])

	assert.Empty(t, (&ShareDescriptor{}).Params())
}

func TestRemoteNodeIdentifiers(t *testing.T) {
	node := &RemoteNode{
		DocID:   "doc-1",
		DriveID: "FILE::com.apple.CloudDocs::uuid-1",
	}

	assert.Equal(t, "uuid-1", node.BareID())
	assert.Equal(t, []string{"FILE::com.apple.CloudDocs::uuid-1", "uuid-1"}, node.CandidateIDs())

	t.Run("doc id duplicates are excluded", func(t *testing.T) {
		n := &RemoteNode{DocID: "uuid-1", DriveID: "FILE::com.apple.CloudDocs::uuid-1"}
		assert.Equal(t, []string{"FILE::com.apple.CloudDocs::uuid-1"}, n.CandidateIDs())
	})

	t.Run("no separator", func(t *testing.T) {
		n := &RemoteNode{DocID: "doc", DriveID: "plain-id"}
		assert.Equal(t, "", n.BareID())
		assert.Equal(t, []string{"plain-id"}, n.CandidateIDs())
	})
}

func TestRemoteNodeOwnership(t *testing.T) {
	own := &RemoteNode{Share: &ShareDescriptor{OwnerRecord: "_me"}}
	foreign := &RemoteNode{Share: &ShareDescriptor{OwnerRecord: "_someone"}}
	unshared := &RemoteNode{}

	assert.False(t, own.ForeignOwned("_me"))
	assert.True(t, foreign.ForeignOwned("_me"))
	assert.False(t, unshared.ForeignOwned("_me"))
	assert.True(t, own.IsShared())
	assert.False(t, unshared.IsShared())
}

func TestPhotoAsset(t *testing.T) {
	t.Run("fingerprint prefers content hash", func(t *testing.T) {
		a := &PhotoAsset{ContentHash: "hash", ChangeTag: "tag"}
		assert.Equal(t, "hash", a.Fingerprint())

		a.ContentHash = ""
		assert.Equal(t, "tag", a.Fingerprint())

		a.ChangeTag = ""
		assert.Equal(t, "", a.Fingerprint())
	})

	t.Run("best date precedence", func(t *testing.T) {
		asset := time.Date(2023, 5, 6, 1, 0, 0, 0, time.UTC)
		created := time.Date(2023, 5, 7, 1, 0, 0, 0, time.UTC)
		added := time.Date(2023, 5, 8, 1, 0, 0, 0, time.UTC)

		a := &PhotoAsset{AssetDate: asset, Created: created, AddedDate: added}
		got, ok := a.BestDate()
		assert.True(t, ok)
		assert.Equal(t, asset, got)

		a.AssetDate = time.Time{}
		got, _ = a.BestDate()
		assert.Equal(t, created, got)

		a.Created = time.Time{}
		got, _ = a.BestDate()
		assert.Equal(t, added, got)

		a.AddedDate = time.Time{}
		_, ok = a.BestDate()
		assert.False(t, ok)
	})
}
