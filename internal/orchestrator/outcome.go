package orchestrator

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
)

//go:embed templates/error.html
var templatesFS embed.FS

var errorPage = template.Must(template.ParseFS(templatesFS, "templates/error.html"))

// FailureKind classifies why a worker produced no output.
type FailureKind string

// Failure kinds.
const (
	KindTimeout          FailureKind = "timeout"
	KindProviderNotFound FailureKind = "provider_not_found"
	KindBackend          FailureKind = "backend_error"
	KindCanceled         FailureKind = "canceled"
)

// Failure describes a worker-local failure.
type Failure struct {
	Kind   FailureKind
	Detail string
}

// Outcome is the result of one worker task: either Output or Failure.
type Outcome struct {
	Output  string
	Failure *Failure
}

// Succeeded builds a successful outcome.
func Succeeded(output string) Outcome { return Outcome{Output: output} }

// Failed builds a failed outcome.
func Failed(kind FailureKind, err error) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Detail: err.Error()}}
}

// Render returns the text stored for the worker. Failures become an error page.
func (o Outcome) Render(worker string) string {
	if o.Failure == nil {
		return o.Output
	}
	return RenderError(worker, o.Failure.Detail)
}

// RenderError renders the error page for a worker.
func RenderError(worker, detail string) string {
	var buf bytes.Buffer
	err := errorPage.Execute(&buf, struct {
		ModelName string
		Error     string
	}{ModelName: worker, Error: detail})
	if err != nil {
		return fmt.Sprintf("<html><body><h1>%s failed</h1><pre>%s</pre></body></html>",
			html.EscapeString(worker), html.EscapeString(detail))
	}
	return buf.String()
}
