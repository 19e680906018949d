package web

// pages.go renders the browser pages: the upload form, the import summary and
// the error page. Components are plain templ.ComponentFunc values so the
// package needs no generate step.

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/carimport/internal/core"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:56rem;color:#1f2937}
table{border-collapse:collapse;width:100%}td,th{border-bottom:1px solid #e5e7eb;padding:.35rem .5rem;text-align:left}
.stat{display:inline-block;margin-right:1.5rem}.stat b{font-size:1.5rem;display:block}
.err{color:#b91c1c}.muted{color:#6b7280}form p{margin:.75rem 0}`

// htmlWriter writes escaped and raw fragments, keeping the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		h.text(title)
		h.raw(`</title><style>` + pageStyle + `</style></head><body><h1>`)
		h.text(title)
		h.raw(`</h1>`)
		if h.err != nil {
			return h.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		h.raw(`</body></html>`)
		return h.err
	})
}

// uploadPage shows the import form and the most recent runs.
func uploadPage(tables []core.TableDefinition, selected string, runs []core.ImportRun) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<form method="post" action="/import" enctype="multipart/form-data">`)

		h.raw(`<p><label>Table <select name="table">`)
		for _, def := range tables {
			h.raw(`<option value="`)
			h.text(def.Info.Key)
			h.raw(`"`)
			if def.Info.Key == selected {
				h.raw(` selected`)
			}
			h.raw(`>`)
			h.text(def.Info.Label)
			h.raw(`</option>`)
		}
		h.raw(`</select></label></p>`)

		h.raw(`<p><label>Delimiter <select name="delimiter">` +
			`<option value="">Default</option><option value="auto">Detect</option>` +
			`<option value=";">;</option><option value=",">,</option>` +
			`<option value="tab">Tab</option><option value="|">|</option>` +
			`</select></label></p>`)
		h.raw(`<p><input type="file" name="file" accept=".csv,text/csv" required></p>`)
		h.raw(`<p><button type="submit">Import</button></p></form>`)

		h.raw(`<h2>Recent imports</h2>`)
		if len(runs) == 0 {
			h.raw(`<p class="muted">No imports yet.</p>`)
			return h.err
		}
		h.raw(`<table><tr><th>Started</th><th>Table</th><th>File</th><th>Status</th>` +
			`<th>Created</th><th>Updated</th><th>Failed</th></tr>`)
		for _, run := range runs {
			h.raw(`<tr><td>`)
			h.text(run.StartedAt.Format("2006-01-02 15:04"))
			h.raw(`</td><td>`)
			h.text(run.TableKey)
			h.raw(`</td><td>`)
			h.text(run.FileName)
			h.raw(`</td><td`)
			if run.Status == core.RunFailed {
				h.raw(` class="err" title="`)
				h.text(run.Error)
				h.raw(`"`)
			}
			h.raw(`>`)
			h.text(run.Status)
			h.rawf(`</td><td>%d</td><td>%d</td><td>%d</td></tr>`, run.Created, run.Updated, run.Failed)
		}
		h.raw(`</table>`)
		return h.err
	})
	return layout("Vehicle import", body)
}

// summaryPage renders the result of a committed import.
func summaryPage(result *core.Result) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<p class="muted">`)
		h.text(result.FileName)
		h.raw(` into `)
		h.text(result.TableKey)
		h.raw(` (`)
		h.text(result.Duration.Round(time.Millisecond).String())
		h.raw(`)</p>`)

		stat := func(label string, n int) {
			h.raw(`<span class="stat"><b>` + strconv.Itoa(n) + `</b>`)
			h.text(label)
			h.raw(`</span>`)
		}
		stat("created", result.Created)
		stat("updated", result.Updated)
		stat("skipped", result.Skipped)
		stat("failed", len(result.RowErrors))

		if len(result.RowErrors) > 0 {
			h.raw(`<h2>Row errors</h2><table><tr><th>Row</th><th>Reason</th></tr>`)
			for _, re := range result.RowErrors {
				h.rawf(`<tr><td>%d</td><td class="err">`, re.Line)
				h.text(re.Reason)
				h.raw(`</td></tr>`)
			}
			h.raw(`</table>`)
		}
		h.raw(`<p><a href="/">Import another file</a></p>`)
		return h.err
	})
	return layout("Import complete", body)
}

func errorPage(msg core.UserMessage) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<p class="err">`)
		h.text(msg.Message)
		h.raw(`</p><p>`)
		h.text(msg.Action)
		h.raw(`</p><p class="muted">Code: `)
		h.text(msg.Code)
		h.raw(`</p><p><a href="/">Back</a></p>`)
		return h.err
	})
	return layout("Import failed", body)
}
