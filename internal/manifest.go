package internal

import (
	"fmt"
	"os"

	"github.com/sensiblebit/catrust"
	"github.com/sensiblebit/catrust/internal/truststore"
	"gopkg.in/yaml.v3"
)

// ManifestInput is one input source entry from the manifest file.
type ManifestInput struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
	// Trust lists purposes declared trusted for records whose source
	// carries no trust metadata of its own (PKCS#7 bundles, bare PEM).
	Trust []string `yaml:"trust,omitempty"`
}

// ManifestOutput is one requested artifact entry from the manifest file.
type ManifestOutput struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Manifest is the full compile configuration file:
//
//	conflictPolicy: distrust-wins
//	inputs:
//	  - path: certdata.txt
//	    format: certdata
//	outputs:
//	  - format: pem-bundle
//	    path: out/ca-bundle.trust.pem
type Manifest struct {
	ConflictPolicy string           `yaml:"conflictPolicy,omitempty"`
	Inputs         []ManifestInput  `yaml:"inputs"`
	Outputs        []ManifestOutput `yaml:"outputs"`
}

// LoadManifest reads and validates a manifest YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	for i, in := range m.Inputs {
		if in.Path == "" {
			return nil, fmt.Errorf("manifest %s: inputs[%d] has no path", path, i)
		}
		if in.Format == "" {
			return nil, fmt.Errorf("manifest %s: inputs[%d] has no format", path, i)
		}
	}
	for i, out := range m.Outputs {
		if out.Path == "" {
			return nil, fmt.Errorf("manifest %s: outputs[%d] has no path", path, i)
		}
		if out.Format == "" {
			return nil, fmt.Errorf("manifest %s: outputs[%d] has no format", path, i)
		}
	}
	return &m, nil
}

// DefaultTrustMap converts the input's declared default purposes to a trust
// map.
func (in ManifestInput) DefaultTrustMap() catrust.TrustMap {
	if len(in.Trust) == 0 {
		return nil
	}
	m := make(catrust.TrustMap, len(in.Trust))
	for _, p := range in.Trust {
		m[catrust.ParsePurpose(p)] = catrust.Trusted
	}
	return m
}

// Sources loads every manifest input from disk into pipeline sources.
func (m *Manifest) Sources() ([]truststore.Source, error) {
	sources := make([]truststore.Source, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("reading input %s: %w", in.Path, err)
		}
		sources = append(sources, truststore.Source{
			Name:         in.Path,
			Format:       in.Format,
			Data:         data,
			DefaultTrust: in.DefaultTrustMap(),
		})
	}
	return sources, nil
}

// PipelineOutputs converts the manifest outputs to pipeline outputs.
func (m *Manifest) PipelineOutputs() []truststore.Output {
	outputs := make([]truststore.Output, 0, len(m.Outputs))
	for _, out := range m.Outputs {
		outputs = append(outputs, truststore.Output{Format: out.Format, Path: out.Path})
	}
	return outputs
}
