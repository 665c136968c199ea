package query

// Descriptor is a query in one of the forms the engine accepts.
//
// This is a sealed interface - only types in this package implement it.
// Normalize switches over it exhaustively.
//
// Descriptor types:
//   - Text: literal SQL
//   - File: a prepared query file
//   - *PreparedStatement: a named server-side prepared statement
//   - *ParameterizedQuery: text sent with separate parameters
//   - Func: a function or procedure call
type Descriptor interface {
	descriptor() // Marker method - seals interface to this package
}

// Preparable is a query resource that is parsed on first use and cached.
//
// After Prepare, either Err is non-nil (and File names the resource for
// diagnostics) or SQL returns the resolved query text.
type Preparable interface {
	// Prepare loads the resource. Idempotent; the outcome is cached.
	Prepare()

	// Err returns the stored preparation error, if any.
	Err() error

	// File returns the display identifier of the resource.
	File() string

	// SQL returns the prepared query text.
	SQL() string
}

// Text is a literal SQL string.
type Text string

func (Text) descriptor() {}

// File wraps a prepared query file.
type File struct {
	Handle Preparable
}

func (File) descriptor() {}

// Func is a call to a database function or procedure.
// It is rendered as "SELECT * FROM name(values...)".
type Func struct {
	Name   string
	Values any
}

func (Func) descriptor() {}

func (*PreparedStatement) descriptor()  {}
func (*ParameterizedQuery) descriptor() {}

// Raw returns a Text descriptor.
func Raw(sql string) Descriptor {
	return Text(sql)
}

// FromFile returns a File descriptor for h.
func FromFile(h Preparable) Descriptor {
	return File{Handle: h}
}

// Function returns a Func descriptor.
func Function(name string, values ...any) Descriptor {
	f := Func{Name: name}
	if len(values) > 0 {
		f.Values = values
	}
	return f
}
