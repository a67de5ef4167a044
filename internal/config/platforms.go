package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/favorites-e2e/internal/platform"
)

// PlatformSettings are the run-wide toggles declared next to the platform list.
type PlatformSettings struct {
	BuildName   string `yaml:"buildName"`
	ProjectName string `yaml:"projectName"`
	SessionName string `yaml:"sessionName"`
	Debug       bool   `yaml:"debug"`
	NetworkLogs bool   `yaml:"networkLogs"`
	ConsoleLogs string `yaml:"consoleLogs"`
}

// PlatformFile is the declarative platform matrix (platforms.yml).
type PlatformFile struct {
	Settings  PlatformSettings      `yaml:",inline"`
	Platforms []platform.Descriptor `yaml:"platforms"`
}

// DefaultPlatformFile returns the built-in matrix and toggles.
func DefaultPlatformFile() PlatformFile {
	return PlatformFile{
		Settings: PlatformSettings{
			BuildName:   "favorites-e2e-build",
			ProjectName: "Cross-Browser Samsung Galaxy Test",
			SessionName: "Samsung Galaxy S20+ Favorite Test",
			Debug:       true,
			NetworkLogs: true,
			ConsoleLogs: "info",
		},
		Platforms: platform.Defaults(),
	}
}

// ParsePlatformFile decodes a platform file. Unknown keys are rejected.
// Missing settings fall back to the built-in defaults; an empty platform list
// falls back to the built-in matrix.
func ParsePlatformFile(data []byte) (PlatformFile, error) {
	file := DefaultPlatformFile()
	file.Platforms = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return PlatformFile{}, fmt.Errorf("parse platform file: %w", err)
	}
	if len(file.Platforms) == 0 {
		file.Platforms = platform.Defaults()
	}
	seen := make(map[string]bool, len(file.Platforms))
	for _, p := range file.Platforms {
		if seen[p.Name] {
			return PlatformFile{}, fmt.Errorf("parse platform file: duplicate platform %q", p.Name)
		}
		seen[p.Name] = true
	}
	return file, nil
}

// LoadPlatformFile reads and parses the platform file at path.
func LoadPlatformFile(path string) (PlatformFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlatformFile{}, fmt.Errorf("read platform file: %w", err)
	}
	file, err := ParsePlatformFile(data)
	if err != nil {
		return PlatformFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// resolvePlatformFile loads an explicit path, or platforms.yml when present,
// or falls back to the built-in matrix.
func resolvePlatformFile(path string) (PlatformFile, error) {
	if path != "" {
		file, err := LoadPlatformFile(path)
		if err != nil {
			return DefaultPlatformFile(), err
		}
		return file, nil
	}
	if _, err := os.Stat(defaultPlatformsFile); err == nil {
		return LoadPlatformFile(defaultPlatformsFile)
	}
	return DefaultPlatformFile(), nil
}
