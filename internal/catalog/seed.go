package catalog

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// seedFile is the on-disk format for source seed lists.
type seedFile struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	ID          string   `yaml:"id"`
	Endpoint    string   `yaml:"endpoint"`
	Categories  []string `yaml:"categories"`
	CostPerCall float64  `yaml:"cost_per_call"`
}

// ImportSeedFile registers every source from a YAML seed file, returning the
// number registered. Invalid entries abort the import so a typo in a seed
// list is caught immediately rather than silently skipped.
func (c *Catalog) ImportSeedFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: read seed file %s", path)
	}

	var seeds seedFile
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return 0, eris.Wrapf(err, "catalog: parse seed file %s", path)
	}

	for i, s := range seeds.Sources {
		src := model.Source{
			ID:          s.ID,
			Endpoint:    s.Endpoint,
			Categories:  s.Categories,
			CostPerCall: s.CostPerCall,
		}
		if err := c.Register(ctx, src); err != nil {
			return i, eris.Wrapf(err, "catalog: seed entry %d", i)
		}
	}

	return len(seeds.Sources), nil
}
