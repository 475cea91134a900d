// Package envfile reads dotenv-style files into string maps. Apply uses
// it for variable and secret files passed on the command line, and Load
// supports the conventional .env override chain for a working directory.
package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Load reads the .env chain from dir, later files overriding earlier
// ones:
//
//	.env
//	.env.local
//	.env.<environment>
//	.env.<environment>.local
//
// Missing files are skipped. An empty environment loads only the first
// two.
func Load(dir, environment string) (map[string]string, error) {
	files := []string{".env", ".env.local"}
	if environment != "" {
		files = append(files, ".env."+environment, ".env."+environment+".local")
	}

	vars := make(map[string]string)
	for _, name := range files {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
		}
		if err := parseEnvFile(content, vars); err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to parse %s", path), err)
		}
	}
	return vars, nil
}

// ParseFile reads a single dotenv file. Unlike Load, a missing file is
// an error.
func ParseFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}
	vars := make(map[string]string)
	if err := parseEnvFile(content, vars); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to parse %s", path), err)
	}
	return vars, nil
}

func parseEnvFile(content []byte, vars map[string]string) error {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("malformed line %q, expected KEY=value", line)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("malformed line %q, empty key", line)
		}

		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		vars[key] = value
	}
	return scanner.Err()
}
