package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation matched.
	Pass bool `json:"pass"`

	// Trace holds the rendered query results, one line per entry. It is
	// what golden files compare against.
	Trace []string `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Records is the number of IBDF records imported.
	Records int64 `json:"records"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends rendered lines to the trace.
func (r *Result) AddTrace(lines ...string) {
	r.Trace = append(r.Trace, lines...)
}
