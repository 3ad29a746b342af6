package ir

const (
	// PlanVersion is hashed into every plan fingerprint; bump it when the
	// physical plan encoding changes meaning.
	PlanVersion = "1"

	// CompilerVersion is reported by relplan --version.
	CompilerVersion = "0.1.0"
)
