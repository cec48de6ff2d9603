// Package analysis defines the structured facts extracted from source files.
package analysis

// Extraction identifies which path produced a record's entities.
type Extraction string

const (
	// ExtractionGrammar means entities came from a full syntax-tree parse.
	ExtractionGrammar Extraction = "grammar"
	// ExtractionPattern means entities came from text-pattern matching,
	// used when grammar parsing is unavailable or the tree has errors.
	ExtractionPattern Extraction = "pattern"
)

// Span is a source position range. Lines and columns are zero-based,
// matching tree-sitter points.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Param describes one function parameter. Type is empty for languages
// or positions where no annotation is present.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Function is an extracted function or method declaration.
type Function struct {
	Name       string  `json:"name"`
	Position   Span    `json:"position"`
	Parameters []Param `json:"parameters"`
	Complexity int     `json:"complexity"`
	Body       string  `json:"body_text"`
}

// Class is an extracted type-like declaration (class, struct, interface)
// owning its method-like functions in declaration order.
type Class struct {
	Name       string     `json:"name"`
	Position   Span       `json:"position"`
	Methods    []Function `json:"methods"`
	Complexity int        `json:"complexity"`
	Body       string     `json:"body_text"`
}

// ImportKind tags the shape of an import statement.
type ImportKind string

const (
	// ImportPlain is a direct import of a module or package path.
	ImportPlain ImportKind = "plain"
	// ImportScoped covers selective, aliased and static forms
	// (Python from-import, Go aliased import, Java static import).
	ImportScoped ImportKind = "scoped"
)

// Import is one extracted import statement.
type Import struct {
	Text     string     `json:"text"`
	Position Span       `json:"position"`
	Kind     ImportKind `json:"kind"`
}

// Metrics holds per-file line counts and average structural complexity.
// CodeLines + CommentLines + BlankLines == TotalLines always holds:
// every line is classified into exactly one bucket.
type Metrics struct {
	TotalLines        int     `json:"total_lines"`
	CodeLines         int     `json:"code_lines"`
	CommentLines      int     `json:"comment_lines"`
	BlankLines        int     `json:"blank_lines"`
	AverageComplexity float64 `json:"average_complexity"`
}

// Record is the durable analysis result for one source file. Once built it
// is only mutated by attaching the embedding vector and the exact text it
// was produced from; a record is never partially embedded.
type Record struct {
	FilePath   string     `json:"file_path"`
	Language   string     `json:"language"`
	Extraction Extraction `json:"extraction"`
	Functions  []Function `json:"functions"`
	Classes    []Class    `json:"classes"`
	Imports    []Import   `json:"imports"`
	Metrics    Metrics    `json:"metrics"`

	Embedding     []float32 `json:"embedding,omitempty"`
	EmbeddingText string    `json:"embedding_text,omitempty"`
}

// Embedded reports whether the record carries its embedding vector.
func (r *Record) Embedded() bool {
	return len(r.Embedding) > 0
}

// StripEmbedding returns a copy without the vector or its source text,
// the shape handed to the durable store.
func (r Record) StripEmbedding() Record {
	r.Embedding = nil
	r.EmbeddingText = ""
	return r
}

// Summary aggregates entity counts across a repository scan.
type Summary struct {
	TotalFiles     int `json:"total_files"`
	TotalFunctions int `json:"total_functions"`
	TotalClasses   int `json:"total_classes"`
	TotalImports   int `json:"total_imports"`
}

// Add folds one record into the summary.
func (s *Summary) Add(r *Record) {
	s.TotalFiles++
	s.TotalFunctions += len(r.Functions)
	s.TotalClasses += len(r.Classes)
	s.TotalImports += len(r.Imports)
}

// RepositoryResult is the outcome of scanning one repository root.
type RepositoryResult struct {
	Repository string   `json:"repository"`
	Language   string   `json:"language"`
	Records    []Record `json:"files"`
	Summary    Summary  `json:"summary"`
}
