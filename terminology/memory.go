package terminology

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// TableURLPrefix is the canonical prefix of HL7 v2 table CodeSystems.
const TableURLPrefix = "http://terminology.hl7.org/CodeSystem/v2-"

// Lookup answers code table queries. Failures to reach a table are hl7err
// Lookup errors; a value missing from a loaded table is not an error.
type Lookup interface {
	// Values returns the codes of a table in load order.
	Values(tableID string) ([]string, error)
	// Description returns the display text of a code.
	Description(tableID, value string) (string, error)
	// Contains reports whether the table holds value.
	Contains(tableID, value string) (bool, error)
}

// InMemory implements Lookup with tables held in memory.
type InMemory struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// table holds one code table for fast lookup.
type table struct {
	id     string
	url    string
	order  []string
	values map[string]string // code -> display
}

// NewInMemory creates an empty in-memory lookup.
func NewInMemory() *InMemory {
	return &InMemory{tables: make(map[string]*table)}
}

// AddTable adds or replaces a table. Codes keep the order given; a code
// listed twice keeps its last description.
func (s *InMemory) AddTable(id string, codes ...Code) {
	t := &table{id: id, values: make(map[string]string, len(codes))}
	for _, c := range codes {
		t.add(c.Value, c.Description)
	}
	s.mu.Lock()
	s.tables[id] = t
	s.mu.Unlock()
}

// Code is one entry of a table.
type Code struct {
	Value       string
	Description string
}

func (t *table) add(code, display string) {
	if _, ok := t.values[code]; !ok {
		t.order = append(t.order, code)
	}
	t.values[code] = display
}

// LoadR4CodeSystem loads an HL7 v2 table published as an R4 CodeSystem.
func (s *InMemory) LoadR4CodeSystem(cs *r4.CodeSystem) error {
	if cs == nil || cs.Url == nil {
		return fmt.Errorf("codesystem is nil or has no URL")
	}
	url := stripVersionFromURL(*cs.Url)
	id, ok := TableID(url)
	if !ok {
		return fmt.Errorf("codesystem %s is not an HL7 v2 table", url)
	}

	t := &table{id: id, url: url, values: make(map[string]string)}
	extractConcepts(cs.Concept, t)

	s.mu.Lock()
	s.tables[id] = t
	s.mu.Unlock()
	return nil
}

// extractConcepts flattens nested concepts into t.
func extractConcepts(concepts []r4.CodeSystemConcept, t *table) {
	for i := range concepts {
		concept := &concepts[i]
		if concept.Code == nil {
			continue
		}
		display := ""
		if concept.Display != nil {
			display = *concept.Display
		}
		t.add(*concept.Code, display)
		if len(concept.Concept) > 0 {
			extractConcepts(concept.Concept, t)
		}
	}
}

// TableID extracts the table id from a v2 CodeSystem URL, e.g. "0001" from
// http://terminology.hl7.org/CodeSystem/v2-0001.
func TableID(url string) (string, bool) {
	url = stripVersionFromURL(url)
	name := url[strings.LastIndex(url, "/")+1:]
	id, ok := strings.CutPrefix(name, "v2-")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *InMemory) get(tableID string) (*table, error) {
	s.mu.RLock()
	t, ok := s.tables[tableID]
	s.mu.RUnlock()
	if !ok {
		return nil, hl7err.Lookup("table %s is not loaded", tableID)
	}
	return t, nil
}

// Values implements Lookup.
func (s *InMemory) Values(tableID string) ([]string, error) {
	t, err := s.get(tableID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.order...), nil
}

// Description implements Lookup.
func (s *InMemory) Description(tableID, value string) (string, error) {
	t, err := s.get(tableID)
	if err != nil {
		return "", err
	}
	d, ok := t.values[value]
	if !ok {
		return "", hl7err.Lookup("code %q is not in table %s", value, tableID)
	}
	return d, nil
}

// Contains implements Lookup.
func (s *InMemory) Contains(tableID, value string) (bool, error) {
	t, err := s.get(tableID)
	if err != nil {
		return false, err
	}
	_, ok := t.values[value]
	return ok, nil
}

// Tables returns the ids of the loaded tables, sorted.
func (s *InMemory) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountTables returns the number of loaded tables.
func (s *InMemory) CountTables() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}

// stripVersionFromURL removes a |version suffix from a canonical URL.
func stripVersionFromURL(url string) string {
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		return url[:idx]
	}
	return url
}

var _ Lookup = (*InMemory)(nil)
