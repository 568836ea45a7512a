package querygen

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Templates holds the query template layers.
type Templates struct {
	Base       []string            `yaml:"base"`
	Categories map[string][]string `yaml:"categories"`
	Intent     []string            `yaml:"intent"`
}

// ParseTemplates reads a template document with a top-level "querygen" key.
// Category keys are lower-cased so lookup is case-insensitive.
func ParseTemplates(data []byte) (*Templates, error) {
	var wrapper struct {
		Querygen Templates `yaml:"querygen"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "querygen: parse templates")
	}

	t := &wrapper.Querygen
	if len(t.Base) == 0 {
		return nil, eris.New("querygen: templates have no base queries")
	}
	cats := make(map[string][]string, len(t.Categories))
	for k, v := range t.Categories {
		cats[strings.ToLower(strings.TrimSpace(k))] = v
	}
	t.Categories = cats
	return t, nil
}

// DefaultTemplates returns the embedded template set.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return t
}
