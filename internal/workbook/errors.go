package workbook

import "fmt"

// TemplateError reports a template that is missing, unreadable or cannot be
// serialised. It aborts the whole render.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }
