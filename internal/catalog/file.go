package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fin-import/internal/model"
)

// seedFile is the on-disk layout accepted by `catalog load`.
//
//	concepts:
//	  - code: PYG_INGRESOS
//	    name: Ingresos de explotación
//	    group: ingresos
//	    mandatory: true
//	    sign: positive
type seedFile struct {
	Concepts []seedEntry `yaml:"concepts"`
}

type seedEntry struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Group     string `yaml:"group"`
	Mandatory bool   `yaml:"mandatory"`
	Sign      string `yaml:"sign"`
}

// LoadFile reads catalog entries from a YAML seed file.
func LoadFile(path string) ([]model.ConceptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates a YAML seed document.
func ParseYAML(data []byte) ([]model.ConceptEntry, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}

	entries := make([]model.ConceptEntry, 0, len(f.Concepts))
	for i, c := range f.Concepts {
		sign, err := model.ParseSign(c.Sign)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: concept #%d (%s)", i+1, c.Code)
		}
		if NormalizeCode(c.Code) == "" {
			return nil, eris.Errorf("catalog: concept #%d has no code", i+1)
		}
		if c.Name == "" {
			c.Name = c.Code
		}
		entries = append(entries, model.ConceptEntry{
			Code:      NormalizeCode(c.Code),
			Name:      c.Name,
			Group:     c.Group,
			Mandatory: c.Mandatory,
			Sign:      sign,
		})
	}

	// Validate uniqueness the same way a loaded catalog would.
	if _, err := New(entries); err != nil {
		return nil, err
	}
	return entries, nil
}
