package deployment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Load parses a deployment from the given file path, dispatching on the
// file extension (.yml/.yaml or .hcl). The result is validated.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return LoadYAML(data, path)
	case ".hcl":
		return LoadHCL(data, path)
	default:
		return nil, errors.ParseError(path, fmt.Errorf("unsupported declaration format %q", filepath.Ext(path)))
	}
}

// LoadYAML parses a deployment from YAML bytes. The filename is used only
// for error messages.
func LoadYAML(data []byte, filename string) (*Deployment, error) {
	var dep Deployment
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)

	if err := decoder.Decode(&dep); err != nil {
		return nil, errors.ParseError(filename, err)
	}

	if err := Validate(&dep); err != nil {
		return nil, err
	}

	return &dep, nil
}
