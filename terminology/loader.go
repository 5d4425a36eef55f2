package terminology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/specs"
)

// LoadStats contains statistics about table loading.
type LoadStats struct {
	TablesLoaded int64
	Errors       int64
}

// LoadEmbedded loads the code tables shipped with the module.
func (s *InMemory) LoadEmbedded() (*LoadStats, error) {
	data, err := specs.ReadTables()
	if err != nil {
		return nil, err
	}
	return s.LoadJSON(data)
}

// LoadJSON loads a CodeSystem or a Bundle of CodeSystems. Bundle entries
// that are not v2 tables are counted as errors and skipped.
func (s *InMemory) LoadJSON(data []byte) (*LoadStats, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	stats := &LoadStats{}
	switch probe.ResourceType {
	case "Bundle":
		loaded, errs, err := loadCodeSystemsFromBundle(data, s.LoadR4CodeSystem)
		stats.TablesLoaded, stats.Errors = loaded, errs
		if err != nil {
			return stats, err
		}
	case "CodeSystem":
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return nil, fmt.Errorf("failed to parse CodeSystem: %w", err)
		}
		if err := s.LoadR4CodeSystem(&cs); err != nil {
			stats.Errors++
			return stats, err
		}
		stats.TablesLoaded++
	default:
		return nil, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}
	if stats.Errors > 0 {
		logger.Warn("%d bundle entries could not be loaded as code tables", stats.Errors)
	}
	return stats, nil
}

// LoadFile loads a JSON file, or every *.json file when path is a directory.
func (s *InMemory) LoadFile(path string) (*LoadStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	total := &LoadStats{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return total, fmt.Errorf("failed to read %s: %w", f, err)
		}
		stats, err := s.LoadJSON(data)
		if stats != nil {
			total.TablesLoaded += stats.TablesLoaded
			total.Errors += stats.Errors
		}
		if err != nil {
			return total, fmt.Errorf("%s: %w", f, err)
		}
	}
	return total, nil
}

type bundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

type bundle struct {
	ResourceType string        `json:"resourceType"`
	Entry        []bundleEntry `json:"entry"`
}

func loadCodeSystemsFromBundle(data []byte, load func(*r4.CodeSystem) error) (loaded, errors int64, err error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, 0, fmt.Errorf("failed to parse Bundle: %w", err)
	}
	for _, entry := range b.Entry {
		if entry.Resource == nil {
			continue
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != "CodeSystem" {
			continue
		}
		var cs r4.CodeSystem
		if err := json.Unmarshal(entry.Resource, &cs); err != nil {
			errors++
			continue
		}
		if err := load(&cs); err != nil {
			errors++
			continue
		}
		loaded++
	}
	return loaded, errors, nil
}
