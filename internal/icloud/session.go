// Package icloud implements the remote capability interfaces of the
// backup engine against the iCloud web API. Authentication and the 2FA
// code exchange happen elsewhere; a Session is reconstructed from
// already-trusted session data on disk.
package icloud

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/imroc/req/v3"

	"github.com/icebox-backup/icebox/internal/utils"
	"github.com/icebox-backup/icebox/internal/version"
)

// WebServices are the per-account service roots handed out at login.
type WebServices struct {
	DriveWS string `json:"drivews"`
	DocWS   string `json:"docws"`
	CKDBWS  string `json:"ckdatabasews"`
	Photos  string `json:"photos"`
}

// SessionData is the trusted session state persisted after login.
type SessionData struct {
	Identity    string       `json:"identity"`
	DSID        string       `json:"dsid"`
	OwnerRecord string       `json:"owner_record"`
	WebServices WebServices  `json:"webservices"`
	Cookies     []httpCookie `json:"cookies"`
}

type httpCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Session is one account's authenticated handle to the iCloud web API.
type Session struct {
	client   *req.Client
	identity string
	dsid     string
	owner    string
	services WebServices

	drive  *DriveService
	photos *PhotosService
}

// NewSession builds a session from trusted session data.
func NewSession(data *SessionData) (*Session, error) {
	if data.DSID == "" {
		return nil, fmt.Errorf("session for %s has no dsid", data.Identity)
	}

	client := req.C().
		SetUserAgent("icebox/"+version.Version).
		SetTimeout(5*time.Minute).
		SetCommonQueryParam("dsid", data.DSID).
		SetCommonHeader("Origin", "https://www.icloud.com").
		SetCommonHeader("Referer", "https://www.icloud.com/")

	cookies := make([]*http.Cookie, 0, len(data.Cookies))
	for _, c := range data.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	client.SetCommonCookies(cookies...)

	s := &Session{
		client:   client,
		identity: data.Identity,
		dsid:     data.DSID,
		owner:    data.OwnerRecord,
		services: data.WebServices,
	}
	s.drive = newDriveService(s)
	s.photos = newPhotosService(s)
	return s, nil
}

// LoadSession reads the persisted session for an identity from the
// session directory.
func LoadSession(dir, identity string) (*Session, error) {
	path := filepath.Join(dir, utils.SafeName(identity), "session.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	if data.Identity == "" {
		data.Identity = identity
	}
	return NewSession(&data)
}

func (s *Session) Identity() string { return s.identity }

// OwnerRecord is the account's own CloudKit record name, the authoritative
// identity used to tell own shared folders from foreign ones.
func (s *Session) OwnerRecord() string { return s.owner }

func (s *Session) Drive() *DriveService   { return s.drive }
func (s *Session) Photos() *PhotosService { return s.photos }

// Validate checks the session is still trusted by the remote end.
func (s *Session) Validate(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Get("https://setup.icloud.com/setup/ws/1/validate")
	if err != nil {
		return fmt.Errorf("validate session: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("validate session: %s", resp.GetStatus())
	}
	return nil
}
