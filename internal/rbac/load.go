package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadMatrixFile reads a YAML (or JSON) matrix file. An empty path yields the
// built-in DefaultMatrix.
func LoadMatrixFile(path string) (*Matrix, error) {
	if path == "" {
		return DefaultMatrix(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read matrix file: %w", err)
	}
	return ParseMatrix(data)
}

// ParseMatrix decodes YAML (a superset of the JSON shape) into a Matrix.
func ParseMatrix(data []byte) (*Matrix, error) {
	var cfg MatrixConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rbac: parse matrix: %w", err)
	}
	if len(cfg) == 0 {
		return nil, fmt.Errorf("rbac: matrix defines no roles")
	}
	return NewMatrix(cfg)
}
