// Package errors defines the typed errors raised while compiling and
// serving pages, and maps them to HTTP statuses and client messages.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrorCollector gathers errors keyed by the page that produced them.
type ErrorCollector struct {
	errs  map[string]error
	mutex sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{errs: make(map[string]error)}
}

// Add records err for path. Nil errors are ignored.
func (ec *ErrorCollector) Add(path string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errs[path] = err
}

// Get returns the error recorded for path.
func (ec *ErrorCollector) Get(path string) (error, bool) {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	err, ok := ec.errs[path]
	return err, ok
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errs) > 0
}

// Len returns the number of recorded errors.
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errs)
}

// Err joins all recorded errors in path order, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	if len(ec.errs) == 0 {
		return nil
	}

	paths := make([]string, 0, len(ec.errs))
	for p := range ec.errs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	joined := make([]error, 0, len(paths))
	for _, p := range paths {
		joined = append(joined, fmt.Errorf("%s: %w", p, ec.errs[p]))
	}
	return errors.Join(joined...)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errs = make(map[string]error)
}
