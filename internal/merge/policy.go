package merge

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// Policy controls how confidence gaps are filled during a merge. A
// field arriving without a confidence score is assumed at the default
// level, overridable per field for sources known to be strong or weak
// on specific attributes.
type Policy struct {
	// DefaultConfidence is assumed for incoming fields with no score.
	DefaultConfidence float64 `yaml:"default_confidence"`
	// FieldOverrides replaces the default for specific fields.
	FieldOverrides map[model.FieldKey]float64 `yaml:"field_overrides"`
}

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{DefaultConfidence: 0.5}
}

// LoadPolicy reads a merge policy from a YAML file. An empty path
// returns the default policy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "merge: read policy %s", path)
	}
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, eris.Wrapf(err, "merge: parse policy %s", path)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) validate() error {
	if p.DefaultConfidence < 0 || p.DefaultConfidence > 1 {
		return eris.Errorf("merge: default_confidence %.2f out of range", p.DefaultConfidence)
	}
	for key, c := range p.FieldOverrides {
		if _, ok := model.AccessorFor(key); !ok {
			return eris.Errorf("merge: override for unknown field %q", key)
		}
		if c < 0 || c > 1 {
			return eris.Errorf("merge: override for %q out of range: %.2f", key, c)
		}
	}
	return nil
}

// confidenceFor resolves the confidence of an incoming field, falling
// back to the per-field override and then the default.
func (p Policy) confidenceFor(key model.FieldKey, conf model.Confidence) float64 {
	if c, ok := conf[key]; ok {
		return c
	}
	if c, ok := p.FieldOverrides[key]; ok {
		return c
	}
	return p.DefaultConfidence
}
