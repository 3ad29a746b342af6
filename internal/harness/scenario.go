package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relplan/internal/querydef"
	"github.com/roach88/relplan/internal/testutil"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the plan
	// snapshot file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixtures lists shared testutil tables to add to the query's tables.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Backends lists the backends to run on. Defaults to DefaultBackends.
	Backends []string `yaml:"backends,omitempty"`

	// StableOrder sorts the output on every column. Defaults to true.
	StableOrder *bool `yaml:"stable_order,omitempty"`

	// Query is the document under test.
	Query querydef.Document `yaml:"query"`

	// Expect states the full expected output, or the expected error.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions are checked against every backend's output.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Properties are extra runs whose output must match the first.
	Properties []string `yaml:"properties,omitempty"`
}

// Expect is the expected outcome of a scenario.
type Expect struct {
	// Columns is the exact output column order.
	Columns []string `yaml:"columns,omitempty"`

	// Rows is the exact output, in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Error is a plan error code such as UNDEFINED_DUPLICATE_COLUMN, or a
	// substring of the error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks one aspect of the output.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Columns []string       `yaml:"columns,omitempty"` // columns
	Count   int            `yaml:"count,omitempty"`   // row_count
	Row     map[string]any `yaml:"row,omitempty"`     // contains_row
	Column  string         `yaml:"column,omitempty"`  // no_column
	Text    string         `yaml:"text,omitempty"`    // explain_contains
}

// Assertion type constants.
const (
	AssertColumns         = "columns"
	AssertRowCount        = "row_count"
	AssertContainsRow     = "contains_row"
	AssertNoColumn        = "no_column"
	AssertExplainContains = "explain_contains"
)

// Property names.
const (
	PropertyOperandOrder  = "operand_order"
	PropertyDeterministic = "deterministic"
)

// DefaultBackends is used when a scenario names none.
var DefaultBackends = []string{"memory", "sqlite"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// stableOrder reports the effective stable_order setting.
func (s *Scenario) stableOrder() bool {
	return s.StableOrder == nil || *s.StableOrder
}

// backends reports the effective backend list.
func (s *Scenario) backends() []string {
	if len(s.Backends) == 0 {
		return DefaultBackends
	}
	return s.Backends
}

// document returns the query with fixture tables added.
func (s *Scenario) document() *querydef.Document {
	doc := s.Query
	doc.Tables = make(map[string]querydef.TableDef, len(s.Query.Tables)+len(s.Fixtures))
	for name, def := range s.Query.Tables {
		doc.Tables[name] = def
	}
	for _, name := range s.Fixtures {
		f := testutil.Frame(name)
		def := querydef.TableDef{Rows: f.Records()}
		for _, c := range f.Schema() {
			def.Columns = append(def.Columns, querydef.ColumnDef{Name: c.Name, Type: string(c.Type)})
		}
		doc.Tables[name] = def
	}
	return &doc
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Query.Steps) == 0 {
		return fmt.Errorf("query.steps is required and must be non-empty")
	}
	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}
	if s.Expect != nil && s.Expect.Error != "" && (len(s.Expect.Rows) > 0 || len(s.Expect.Columns) > 0) {
		return fmt.Errorf("expect: error excludes columns and rows")
	}

	known := testutil.Names()
	for _, name := range s.Fixtures {
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown fixture %q", name)
		}
		if _, dup := s.Query.Tables[name]; dup {
			return fmt.Errorf("fixture %q is also declared in query.tables", name)
		}
	}
	for _, b := range s.Backends {
		if !slices.Contains(DefaultBackends, b) {
			return fmt.Errorf("unknown backend %q", b)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	for _, p := range s.Properties {
		if p != PropertyOperandOrder && p != PropertyDeterministic {
			return fmt.Errorf("unknown property %q", p)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertColumns:
		if len(a.Columns) == 0 {
			return fmt.Errorf("assertions[%d]: columns is required for columns", index)
		}
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertContainsRow:
		if len(a.Row) == 0 {
			return fmt.Errorf("assertions[%d]: row is required for contains_row", index)
		}
	case AssertNoColumn:
		if a.Column == "" {
			return fmt.Errorf("assertions[%d]: column is required for no_column", index)
		}
	case AssertExplainContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for explain_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
