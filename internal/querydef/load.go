package querydef

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuetoken "cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError is a document decoding error, with a position when the source
// format provides one.
type LoadError struct {
	Format  string
	Message string
	Pos     cuetoken.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Format, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Message)
}

// LoadFile reads a document, choosing the decoder by extension: .cue for
// CUE, .yaml or .yml for YAML.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUE(data, path)
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return nil, fmt.Errorf("%s: unsupported document type (want .cue, .yaml or .yml)", path)
	}
}

// LoadYAML decodes a YAML document. Unknown fields are rejected.
func LoadYAML(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &LoadError{Format: "yaml", Message: err.Error()}
	}
	return &doc, nil
}

// LoadCUE evaluates a CUE document and decodes it. filename is used in
// error positions.
func LoadCUE(data []byte, filename string) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc Document
	if err := v.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}
	return &doc, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Format: "cue", Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Format: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
