// Package boundary resolves administrative regions from GeoJSON boundary
// collections, either a local file or a remote boundary service.
package boundary

import (
	"fmt"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// DefaultNameProperty is the feature property holding first-level
// administrative unit names in FAO GAUL style collections.
const DefaultNameProperty = "ADM1_NAME"

// selectRegion returns the single feature whose name property equals name.
func selectRegion(fc *geojson.FeatureCollection, property, name string) (domain.Region, error) {
	var matches []*geojson.Feature
	for _, f := range fc.Features {
		if v, ok := f.Properties[property].(string); ok && v == name {
			matches = append(matches, f)
		}
	}

	switch len(matches) {
	case 0:
		return domain.Region{}, &domain.RegionResolutionError{Name: name, Err: domain.ErrRegionNotFound}
	case 1:
	default:
		return domain.Region{}, &domain.RegionResolutionError{Name: name, Matches: len(matches), Err: domain.ErrRegionAmbiguous}
	}

	region, err := domain.NewRegion(name, matches[0].Geometry)
	if err != nil {
		return domain.Region{}, &domain.RegionResolutionError{Name: name, Matches: 1, Err: fmt.Errorf("invalid boundary geometry: %w", err)}
	}
	return region, nil
}
