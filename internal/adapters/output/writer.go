// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorDim    = lipgloss.Color("240")
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconArrow   = "→"
)

// Writer renders command results as plain text. Styles are resolved against
// the destination, so output to a pipe or a buffer carries no escape codes.
type Writer struct {
	out io.Writer

	title   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return NewWriterWithOutput(os.Stdout)
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	r := lipgloss.NewRenderer(out)
	return &Writer{
		out:     out,
		title:   r.NewStyle().Bold(true).Foreground(colorCyan),
		success: r.NewStyle().Foreground(colorGreen),
		warning: r.NewStyle().Foreground(colorYellow),
		failure: r.NewStyle().Foreground(colorRed),
		dim:     r.NewStyle().Foreground(colorDim),
	}
}

// WriteSyncReport lists, per manifest, the entries added or corrected and
// the references that could not be resolved, followed by a summary line.
func (w *Writer) WriteSyncReport(report *domain.SyncReport) error {
	p := &printer{w: w.out}

	var added, corrected, unresolved int
	for i := range report.Manifests {
		m := &report.Manifests[i]
		added += len(m.Added)
		corrected += len(m.Corrected)
		unresolved += len(m.Unresolved) + len(m.UnknownAliases)

		if !m.Changed() && len(m.Unresolved) == 0 && len(m.UnknownAliases) == 0 {
			continue
		}

		p.line("%s", w.title.Render(relTo(report.WorkspaceRoot, m.ManifestPath)))
		for _, c := range m.Added {
			p.line("  %s %s", w.success.Render("+"), c)
		}
		for _, c := range m.Corrected {
			p.line("  %s %s", w.warning.Render("~"), c)
		}
		for _, ref := range m.UnknownAliases {
			p.line("  %s unknown alias %s", w.failure.Render(iconError), ref.Raw)
		}
		for _, res := range m.Unresolved {
			line := fmt.Sprintf("  %s unresolved %s", w.failure.Render(iconError), res.Reference.Raw)
			if res.Diagnostic != "" {
				line += " " + w.dim.Render("("+res.Diagnostic+")")
			}
			p.line("%s", line)
		}
	}

	verb := "updated"
	if report.Locked {
		verb = "checked"
	}
	icon := w.success.Render(iconSuccess)
	if unresolved > 0 {
		icon = w.warning.Render(iconWarning)
	}
	p.line("%s %s %d manifest(s): %d added, %d corrected, %d unresolved",
		icon, verb, len(report.Manifests), added, corrected, unresolved)
	return p.err
}

// WriteResolution writes one line describing where a reference resolved to.
func (w *Writer) WriteResolution(res *domain.Resolution) error {
	p := &printer{w: w.out}
	if !res.Resolved {
		line := fmt.Sprintf("%s %s unresolved", w.failure.Render(iconError), res.Reference.Raw)
		if res.Diagnostic != "" {
			line += ": " + res.Diagnostic
		}
		p.line("%s", line)
		return p.err
	}

	target := res.ModulePath
	if !res.Version.IsZero() {
		target += " " + res.Version.Tag()
	}
	var flags []string
	flags = append(flags, string(res.Source))
	if res.Asset {
		flags = append(flags, "asset")
	}
	if res.Implicit {
		flags = append(flags, "implicit")
	}
	p.line("%s %s %s %s", res.Reference.Raw, w.dim.Render(iconArrow), w.title.Render(target),
		w.dim.Render("("+strings.Join(flags, ", ")+")"))
	return p.err
}

// WriteAuditReport lists dirty members in module path order.
func (w *Writer) WriteAuditReport(report *domain.AuditReport) error {
	p := &printer{w: w.out}
	if len(report.Dirty) == 0 {
		p.line("%s all packages are clean", w.success.Render(iconSuccess))
		return p.err
	}

	paths := make([]string, 0, len(report.Dirty))
	for path := range report.Dirty {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		reason := report.Dirty[path]
		p.line("%s %s %s", w.warning.Render(iconWarning), path, w.dim.Render(reason.String()))
	}
	p.line("%d dirty package(s)", len(paths))
	return p.err
}

// WriteForkResult reports the registered patch.
func (w *Writer) WriteForkResult(res *domain.ForkResult) error {
	p := &printer{w: w.out}
	switch {
	case res.Unchanged:
		p.line("%s %s %s already forked to %s", w.success.Render(iconSuccess), res.ModulePath, res.Version.Tag(), res.ForkDir)
	case res.Replaced:
		p.line("%s %s %s forked to %s (replaced existing patch)", w.warning.Render(iconWarning), res.ModulePath, res.Version.Tag(), res.ForkDir)
	default:
		p.line("%s %s %s forked to %s", w.success.Render(iconSuccess), res.ModulePath, res.Version.Tag(), res.ForkDir)
	}
	return p.err
}

// WriteMembers lists workspace members with their published version.
func (w *Writer) WriteMembers(ws *domain.Workspace) error {
	p := &printer{w: w.out}
	for _, m := range ws.SortedMembers() {
		version := "unpublished"
		if !m.Version.IsZero() {
			version = m.Version.Tag()
		}
		dir := m.RelPath
		if dir == "" {
			dir = "."
		}
		suffix := ""
		if m.Fork {
			suffix = " " + w.dim.Render("(fork)")
		}
		p.line("%s %s %s%s", m.ModulePath, w.title.Render(version), w.dim.Render(dir), suffix)
	}
	return p.err
}

// printer remembers the first write error so callers check once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func relTo(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Ensure Writer implements domain.OutputWriter.
var _ domain.OutputWriter = (*Writer)(nil)
