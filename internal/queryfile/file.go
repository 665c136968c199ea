// Package queryfile loads SQL from external files, parsing on first use and
// caching the outcome.
//
// A QueryFile never fails at construction. Load problems are stored and
// reported through Err after Prepare, so a broken file surfaces as the
// error of the query that uses it, with the file path as diagnostic text.
package queryfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Options configures a QueryFile.
type Options struct {
	// Minify strips comments and collapses whitespace.
	Minify bool

	// Debug re-reads the file on Prepare whenever its modification time
	// changes.
	Debug bool
}

// QueryFile is a lazily loaded SQL file. Safe for concurrent use.
type QueryFile struct {
	path string
	opts Options

	mu       sync.Mutex
	prepared bool
	stale    bool
	modTime  time.Time
	sql      string
	err      error
}

// New creates a QueryFile for path. The file is not read until Prepare.
func New(path string, opts Options) *QueryFile {
	return &QueryFile{path: path, opts: opts}
}

// Error reports a query file that could not be loaded.
type Error struct {
	File string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("query file %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Prepare loads the file if it has not been loaded, was invalidated, or
// (with Debug) changed on disk since the last load.
func (qf *QueryFile) Prepare() {
	qf.mu.Lock()
	defer qf.mu.Unlock()

	if qf.prepared && !qf.stale && !qf.opts.Debug {
		return
	}

	info, err := os.Stat(qf.path)
	if err == nil && qf.prepared && !qf.stale && info.ModTime().Equal(qf.modTime) {
		return
	}
	qf.prepared = true
	qf.stale = false
	if err != nil {
		qf.sql, qf.err = "", &Error{File: qf.path, Err: err}
		return
	}

	data, err := os.ReadFile(qf.path)
	if err != nil {
		qf.sql, qf.err = "", &Error{File: qf.path, Err: err}
		return
	}
	qf.modTime = info.ModTime()
	qf.sql, qf.err = qf.process(data), nil
}

func (qf *QueryFile) process(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := norm.NFC.String(string(data))
	if qf.opts.Minify {
		return Minify(text)
	}
	return strings.TrimSpace(text)
}

// Invalidate forces the next Prepare to re-read the file.
func (qf *QueryFile) Invalidate() {
	qf.mu.Lock()
	qf.stale = true
	qf.mu.Unlock()
}

// Err returns the stored load error, if any.
func (qf *QueryFile) Err() error {
	qf.mu.Lock()
	defer qf.mu.Unlock()
	return qf.err
}

// File returns the file path as given.
func (qf *QueryFile) File() string {
	return qf.path
}

// Path returns the cleaned absolute path, or the given path if it cannot
// be resolved.
func (qf *QueryFile) Path() string {
	abs, err := filepath.Abs(qf.path)
	if err != nil {
		return qf.path
	}
	return abs
}

// SQL returns the loaded query text.
func (qf *QueryFile) SQL() string {
	qf.mu.Lock()
	defer qf.mu.Unlock()
	return qf.sql
}

// String implements fmt.Stringer.
func (qf *QueryFile) String() string {
	return "QueryFile(" + qf.path + ")"
}
