// Package renderer compiles the script-stripped markup of a page into a
// render function backed by Handlebars templates.
package renderer

import (
	"fmt"

	"github.com/aymerick/raymond"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
)

// RenderFunc renders a page body from the data a server script produced.
type RenderFunc func(data any) (string, error)

// Compile parses markup as a Handlebars template.
func Compile(markup string) (RenderFunc, error) {
	tpl, err := raymond.Parse(markup)
	if err != nil {
		return nil, pgerrors.NewParseError(pgerrors.ErrCodeTemplate, "invalid template", err)
	}

	return func(data any) (out string, err error) {
		// raymond panics on some evaluation errors instead of returning them.
		defer func() {
			if r := recover(); r != nil {
				out, err = "", fmt.Errorf("template execution: %v", r)
			}
		}()
		return tpl.Exec(data)
	}, nil
}

// Static returns a RenderFunc that ignores its data and returns markup.
func Static(markup string) RenderFunc {
	return func(any) (string, error) {
		return markup, nil
	}
}
