// Package specs provides the embedded HL7v2 structure catalog and code tables.
//
// The embedded files include:
//   - hl7/*.hcl: message, group, segment and composite definitions for
//     versions 2.3 through 2.6, loaded in lexical order
//   - tables/v2-tables.json: HL7 v2 tables published as FHIR CodeSystems
//
// Usage:
//
//	reg := specs.Default()
//	def, err := reg.ResolveStructure("2.5", "ADT_A01")
package specs

import (
	"embed"
	"fmt"
	"path"
	"sync"

	"github.com/gofhir/hl7v2/pkg/schema"
	"github.com/gofhir/hl7v2/pkg/schema/hclschema"
)

// Catalog holds the structure definitions.
//
//go:embed hl7/*.hcl
var Catalog embed.FS

// Tables holds the code tables.
//
//go:embed tables/*.json
var Tables embed.FS

// SpecFiles contains the embedded directory and file names.
var SpecFiles = struct {
	CatalogDir string
	TablesDir  string
	V2Tables   string
}{
	CatalogDir: "hl7",
	TablesDir:  "tables",
	V2Tables:   "v2-tables.json",
}

// Loader returns a schema loader for the embedded catalog.
func Loader() schema.Loader {
	return hclschema.FS(Catalog, SpecFiles.CatalogDir)
}

var defaultRegistry = sync.OnceValue(func() *schema.Registry {
	return schema.NewRegistry(Loader())
})

// Default returns the shared registry backed by the embedded catalog.
// The catalog is parsed on first lookup.
func Default() *schema.Registry {
	return defaultRegistry()
}

// ListFiles returns the catalog files in load order.
func ListFiles() ([]string, error) {
	entries, err := Catalog.ReadDir(SpecFiles.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", SpecFiles.CatalogDir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// ReadTables returns the embedded code table bundle.
func ReadTables() ([]byte, error) {
	p := path.Join(SpecFiles.TablesDir, SpecFiles.V2Tables)
	data, err := Tables.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}
