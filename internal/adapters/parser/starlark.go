// Package parser extracts module references from Starlark-style source
// files using tree-sitter's Python grammar.
package parser

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

// loaderFuncs are the calls whose first string argument names another file.
var loaderFuncs = map[string]bool{
	"load":   true,
	"Module": true,
}

const (
	loadQuery = `
		(call
			function: (identifier) @fn
			arguments: (argument_list . (string) @path))
	`
	stringQuery = `(string) @str`
)

// StarlarkParser implements domain.ReferenceParser.
//
// It reports the first string argument of every load() and Module() call,
// whatever its form, and any other string literal that reads as an alias
// ("@name/...") or a repository URL ("host/owner/repo/...").
type StarlarkParser struct {
	lang  *sitter.Language
	loads *sitter.Query
	strs  *sitter.Query
}

// NewStarlarkParser compiles the extraction queries.
func NewStarlarkParser() (*StarlarkParser, error) {
	lang := python.GetLanguage()

	loads, err := sitter.NewQuery([]byte(loadQuery), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create load query: %w", err)
	}
	strs, err := sitter.NewQuery([]byte(stringQuery), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create string query: %w", err)
	}
	return &StarlarkParser{lang: lang, loads: loads, strs: strs}, nil
}

// ParseReferences reads path and returns its references in source order,
// one per literal.
func (p *StarlarkParser) ParseReferences(ctx context.Context, path string) ([]domain.RawReference, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return p.Parse(ctx, path, source)
}

// Parse extracts references from source; path is only used for spans.
func (p *StarlarkParser) Parse(ctx context.Context, path string, source []byte) ([]domain.RawReference, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
	}
	defer tree.Close()
	root := tree.RootNode()

	seen := map[uint32]bool{}
	var refs []domain.RawReference
	add := func(node *sitter.Node) {
		if seen[node.StartByte()] {
			return
		}
		value, ok := stringValue(node, source)
		if !ok || value == "" {
			return
		}
		seen[node.StartByte()] = true
		start := node.StartPoint()
		refs = append(refs, domain.RawReference{
			Value: value,
			Span: domain.SourceSpan{
				File:   path,
				Line:   int(start.Row) + 1,
				Column: int(start.Column) + 1,
			},
		})
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()

	qc.Exec(p.loads, root)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var fn string
		var arg *sitter.Node
		for _, c := range m.Captures {
			switch p.loads.CaptureNameForId(c.Index) {
			case "fn":
				fn = c.Node.Content(source)
			case "path":
				arg = c.Node
			}
		}
		if arg != nil && loaderFuncs[fn] {
			add(arg)
		}
	}

	qc.Exec(p.strs, root)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			if value, ok := stringValue(c.Node, source); ok && looksLikeModuleRef(value) {
				add(c.Node)
			}
		}
	}

	sort.SliceStable(refs, func(i, j int) bool { return spanLess(refs[i].Span, refs[j].Span) })
	return refs, nil
}

// stringValue returns the literal value of a string node. Interpolated
// (f-)strings are rejected since their value is not known statically.
func stringValue(node *sitter.Node, source []byte) (string, bool) {
	raw := node.Content(source)
	prefixEnd := strings.IndexAny(raw, `"'`)
	if prefixEnd < 0 {
		return "", false
	}
	prefix := strings.ToLower(raw[:prefixEnd])
	if strings.Contains(prefix, "f") {
		return "", false
	}
	body := raw[prefixEnd:]

	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			inner := body[len(q) : len(body)-len(q)]
			if strings.Contains(prefix, "r") || len(q) == 3 {
				return inner, true
			}
			if q == `"` {
				if s, err := strconv.Unquote(body); err == nil {
					return s, true
				}
			}
			return inner, true
		}
	}
	return "", false
}

// looksLikeModuleRef reports whether a free-standing string literal is an
// alias or repository reference.
func looksLikeModuleRef(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	if strings.HasPrefix(s, "@") {
		return len(s) > 1
	}
	ref, err := domain.ClassifyReference(s)
	return err == nil && ref.Kind == domain.RefURL
}

func spanLess(a, b domain.SourceSpan) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

// Ensure StarlarkParser implements domain.ReferenceParser.
var _ domain.ReferenceParser = (*StarlarkParser)(nil)
