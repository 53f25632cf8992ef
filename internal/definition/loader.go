// Package definition loads the YAML screen definitions, validates them, and
// serves them from a registry that is swapped atomically on reload.
package definition

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/maximiza/model"
)

// ChecksumSuffix is the extension of an optional sidecar holding the
// expected hex SHA-256 of a definition file.
const ChecksumSuffix = ".sha256"

// Loader scans directories for YAML definition files, parses them, and
// computes SHA-256 checksums.
type Loader struct {
	strict bool
}

// NewLoader creates a Loader. With strict set, a file whose checksum sidecar
// does not match its content fails to load.
func NewLoader(strict bool) *Loader {
	return &Loader{strict: strict}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a DomainDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))
	if l.strict {
		if err := verifyChecksum(path, checksum); err != nil {
			return model.DomainDefinition{}, err
		}
	}

	var def model.DomainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.DomainDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	def.Checksum = checksum
	def.SourceFile = path

	return def, nil
}

// verifyChecksum compares checksum with the sidecar of path, if any.
func verifyChecksum(path, checksum string) error {
	raw, err := os.ReadFile(path + ChecksumSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading checksum of %s: %w", path, err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 || !strings.EqualFold(fields[0], checksum) {
		return fmt.Errorf("checksum mismatch for %s", path)
	}
	return nil
}
