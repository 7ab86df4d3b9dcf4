package icloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDatabaseURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"drivews with port", "https://p123-drivews.icloud.com:443", "https://p123-ckdatabasews.icloud.com:443"},
		{"docws without port", "https://p45-docws.icloud.com", "https://p45-ckdatabasews.icloud.com"},
		{"unrelated host", "https://setup.icloud.com", ""},
		{"http scheme", "http://p1-drivews.icloud.com", ""},
		{"trailing path", "https://p1-drivews.icloud.com/extra", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveDatabaseURL(tc.in))
		})
	}
}
