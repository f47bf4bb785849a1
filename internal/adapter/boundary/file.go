package boundary

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// FileProvider implements pipeline.RegionProvider over a GeoJSON file.
type FileProvider struct {
	path     string
	property string
}

// NewFileProvider creates a provider reading path on every Resolve.
func NewFileProvider(path, property string) *FileProvider {
	if property == "" {
		property = DefaultNameProperty
	}
	return &FileProvider{path: path, property: property}
}

func (p *FileProvider) Resolve(ctx context.Context, name string) (domain.Region, error) {
	if err := ctx.Err(); err != nil {
		return domain.Region{}, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return domain.Region{}, fmt.Errorf("read boundaries: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return domain.Region{}, fmt.Errorf("decode boundaries %s: %w", p.path, err)
	}
	return selectRegion(fc, p.property, name)
}

// WriteFile stores regions as a GeoJSON feature collection, one feature per
// region with its name under property.
func WriteFile(path, property string, regions ...domain.Region) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.Properties[property] = r.Name
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode boundaries: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
