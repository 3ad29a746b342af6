package harness

// Output is what one backend produced for a scenario.
type Output struct {
	Backend string           `json:"backend"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`

	// Err is set when building or executing the document failed.
	Err error `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Outputs holds one entry per backend, in run order.
	Outputs []*Output `json:"outputs"`

	// Explain is the compiled plan text. Empty when the document failed to
	// build.
	Explain string `json:"explain,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Output returns the named backend's output, or nil.
func (r *Result) Output(backend string) *Output {
	for _, o := range r.Outputs {
		if o.Backend == backend {
			return o
		}
	}
	return nil
}
