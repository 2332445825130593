package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadMappingFile reads a MappingConfig from YAML (or JSON, which YAML
// accepts). Unset include flags stay false.
func LoadMappingFile(path string) (MappingConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return MappingConfig{}, err
	}
	var m MappingConfig
	if err := yaml.Unmarshal(b, &m); err != nil {
		return MappingConfig{}, fmt.Errorf("mapping %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return MappingConfig{}, fmt.Errorf("mapping %s: %w", path, err)
	}
	return m, nil
}
