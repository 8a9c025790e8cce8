package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// YAMLFormulaSource loads a formula bundle from a YAML file.
type YAMLFormulaSource struct{}

// Load implements FormulaSource.
func (YAMLFormulaSource) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml formula: %w", err)
	}
	return &cfg, nil
}

// TOMLFormulaSource loads a formula bundle from a TOML file, for operators
// who prefer TOML bundles over YAML (a --formula path ending in .toml).
type TOMLFormulaSource struct{}

// Load implements FormulaSource.
func (TOMLFormulaSource) Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse toml formula: %w", err)
	}
	return &cfg, nil
}

// SourceForFormat returns the FormulaSource matching a "yaml" or "toml"
// format name, inferring from the file extension when format is empty.
func SourceForFormat(format, path string) (FormulaSource, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "", "yaml", "yml":
		return YAMLFormulaSource{}, nil
	case "toml":
		return TOMLFormulaSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported formula format %q", format)
	}
}
