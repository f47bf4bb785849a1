package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Scope is everything a record's values depend on besides its date. Two runs
// may share checkpointed records only when their scopes have the same
// fingerprint.
type Scope struct {
	Region             string
	Geometry           orb.Geometry
	PrecipitationScale float64
	LandSurfaceScale   float64
	PixelCap           int64
	// Sources identifies the series backing the run, including any band renaming.
	Sources string
}

// Fingerprint returns a hex digest of the scope. The full region geometry is
// hashed, so a redrawn boundary under the same name gets a new fingerprint.
func (s Scope) Fingerprint() (string, error) {
	geom, err := wkb.Marshal(s.Geometry)
	if err != nil {
		return "", fmt.Errorf("encode region geometry: %w", err)
	}
	h := sha256.New()
	for _, field := range []string{
		"region=" + s.Region,
		"precipitation_scale=" + strconv.FormatFloat(s.PrecipitationScale, 'g', -1, 64),
		"land_surface_scale=" + strconv.FormatFloat(s.LandSurfaceScale, 'g', -1, 64),
		"pixel_cap=" + strconv.FormatInt(s.PixelCap, 10),
		"sources=" + s.Sources,
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(geom)
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}
