package datacenter

import (
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/mtcore/errors"
)

// InitConnectionParams carries the fields sent once per (media, version)
// tuple inside an invokeWithLayer(initConnection(...)) wrapper (§3/§4.D
// "last-init version per media-flag").
type InitConnectionParams struct {
	APIID          int
	AppVersion     string
	DeviceModel    string
	SystemVersion  string
	LangCode       string
	SystemLangCode string
	LangPack       string
}

// NeedsInitConnection reports whether dc has not yet sent initConnection
// for this (media, params.AppVersion) pair, or the app version has
// changed since the last time it did.
func (d *Datacenter) NeedsInitConnection(media bool, params InitConnectionParams) (bool, error) {
	appVersion, err := semver.NewVersion(params.AppVersion)
	if err != nil {
		return false, errors.Wrapf(err, "initconn: invalid app version %q", params.AppVersion)
	}

	last, ok := d.LastInitVersion(media)
	if !ok {
		return true, nil
	}

	lastVersion, err := semver.NewVersion(last)
	if err != nil {
		// A previously recorded version that no longer parses is treated
		// as absent: resend rather than get stuck.
		return true, nil
	}

	return !appVersion.Equal(lastVersion), nil
}

// MarkInitConnectionSent records that initConnection has now been sent
// for (media, params.AppVersion).
func (d *Datacenter) MarkInitConnectionSent(media bool, params InitConnectionParams) {
	d.SetLastInitVersion(media, params.AppVersion)
}
