package config

import (
	"fmt"
	"io"
	"path/filepath"
)

// Kinds of configuration errors.
const (
	ErrorKindParse      = "parse"
	ErrorKindValidation = "validation"
)

// ConfigurationError is one problem found in a configuration file.
type ConfigurationError struct {
	Path    string
	Section string // credentials, projects, workspace, ...
	Kind    string
	Message string

	// Cause and Hint are optional.
	Cause string
	Hint  string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Section, filepath.Base(e.Path), e.Message)
}

// WriteReport writes e with its cause and hint to w.
func (e ConfigurationError) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "%s error in %s (%s): %s\n", e.Kind, e.Path, e.Section, e.Message)
	if e.Cause != "" {
		fmt.Fprintf(w, "  cause: %s\n", e.Cause)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  hint: %s\n", e.Hint)
	}
}

// ConfigurationErrorCollection is every validation problem found in one
// configuration file.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError
}

func (c *ConfigurationErrorCollection) Error() string {
	switch len(c.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return c.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(c.Errors), c.Errors[0].Error(), len(c.Errors)-1)
}

// HasErrors reports whether anything was collected.
func (c *ConfigurationErrorCollection) HasErrors() bool {
	return len(c.Errors) > 0
}

func (c *ConfigurationErrorCollection) add(path, section string, err error) {
	c.Errors = append(c.Errors, ConfigurationError{
		Path:    path,
		Section: section,
		Kind:    ErrorKindValidation,
		Message: err.Error(),
	})
}

// WriteReport writes one entry per collected error to w.
func (c *ConfigurationErrorCollection) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "%d configuration error(s):\n", len(c.Errors))
	for _, e := range c.Errors {
		e.WriteReport(w)
	}
}
