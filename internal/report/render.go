package report

import (
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/khanhnv2901/secheckup/internal/checker"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

const (
	htmlTemplatePath     = "templates/report.html"
	markdownTemplatePath = "templates/report.md"
	jsonPrefix           = ""
	jsonIndent           = "  "
)

//go:embed templates/report.html templates/report.md
var reportTemplateFS embed.FS

// Format is an output format understood by Render.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatHTML, FormatPDF}

// ParseFormat normalises a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case "markdown":
		return FormatMarkdown, nil
	case FormatText, FormatJSON, FormatMarkdown, FormatHTML, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s (must be text, json, md, html, or pdf)", sharedErrors.ErrUnsupportedType, s)
	}
}

// Extension returns the file extension used when writing f to disk.
func (f Format) Extension() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Document is everything a renderer needs about one checkup.
type Document struct {
	ID           string            `json:"id,omitempty"`
	Target       string            `json:"target,omitempty"`
	Mode         string            `json:"mode"`
	Status       string            `json:"status"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
	Verdicts     []checker.Verdict `json:"verdicts"`
	Summary      Summary           `json:"summary"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Duration is the wall time of the checkup, zero while it is unfinished.
func (d Document) Duration() time.Duration {
	if d.StartedAt.IsZero() || d.CompletedAt.IsZero() || d.CompletedAt.Before(d.StartedAt) {
		return 0
	}
	return d.CompletedAt.Sub(d.StartedAt)
}

// TargetLabel is the target or a placeholder for browser-only checkups.
func (d Document) TargetLabel() string {
	if strings.TrimSpace(d.Target) == "" {
		return "this browser"
	}
	return d.Target
}

var (
	templateFuncs = map[string]interface{}{
		"add":            func(a, b int) int { return a + b },
		"join":           strings.Join,
		"upper":          strings.ToUpper,
		"formatTime":     formatTimestamp,
		"formatDuration": formatDuration,
		"statusIcon":     statusIcon,
		"statusClass":    statusClass,
		"gradeClass":     gradeClass,
		"detailPairs":    detailPairs,
	}

	htmlReportTemplate = htmltemplate.Must(
		htmltemplate.New("report.html").Funcs(templateFuncs).ParseFS(reportTemplateFS, htmlTemplatePath),
	)
	markdownReportTemplate = texttemplate.Must(
		texttemplate.New("report.md").Funcs(templateFuncs).ParseFS(reportTemplateFS, markdownTemplatePath),
	)
)

type executor interface {
	Execute(w io.Writer, data interface{}) error
	Name() string
}

// Render writes doc to w in the requested format.
func Render(w io.Writer, format Format, doc Document) error {
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}
	switch format {
	case FormatText, "":
		return renderText(w, doc)
	case FormatJSON:
		return renderJSON(w, doc)
	case FormatMarkdown:
		return executeTemplate(w, markdownReportTemplate, doc)
	case FormatHTML:
		return executeTemplate(w, htmlReportTemplate, doc)
	case FormatPDF:
		return renderPDF(w, doc)
	default:
		return fmt.Errorf("%w: %s", sharedErrors.ErrUnsupportedType, format)
	}
}

func renderJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent(jsonPrefix, jsonIndent)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	return nil
}

func executeTemplate(w io.Writer, tmpl executor, doc Document) error {
	if err := tmpl.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to execute %s template: %w", tmpl.Name(), err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1f min", d.Minutes())
}

func statusIcon(s checker.Status) string {
	switch s {
	case checker.StatusSecure:
		return "✓"
	case checker.StatusWarning:
		return "!"
	case checker.StatusDanger:
		return "✗"
	case checker.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

func statusClass(s checker.Status) string {
	switch s {
	case checker.StatusSecure:
		return "bg-green-100 text-green-800"
	case checker.StatusWarning:
		return "bg-yellow-100 text-yellow-800"
	case checker.StatusDanger:
		return "bg-red-100 text-red-800"
	default:
		return "bg-gray-100 text-gray-700"
	}
}

func gradeClass(grade string) string {
	switch grade {
	case "A", "B":
		return "text-green-600"
	case "C", "D":
		return "text-yellow-600"
	case "F":
		return "text-red-600"
	default:
		return "text-gray-500"
	}
}

// DetailPair is one rendered entry of a verdict's details.
type DetailPair struct {
	Key   string
	Value string
}

// detailPairs flattens verdict details into sorted scalar strings for the
// text-based renderers.
func detailPairs(details map[string]interface{}) []DetailPair {
	if len(details) == 0 {
		return nil
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]DetailPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, DetailPair{Key: k, Value: detailValue(details[k])})
	}
	return pairs
}

func detailValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case fmt.Stringer:
		return val.String()
	case int, int64, bool:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
