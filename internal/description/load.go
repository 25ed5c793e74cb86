package description

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/failure"
)

// Document is a parsed description file.
type Document struct {
	Source string
	body   hcl.Body
}

// Load parses text as inline JSON; when that fails it is taken as a path to
// a description file. Files ending in .hcl use native HCL syntax, all
// others JSON.
func Load(ctx context.Context, text string) (*Document, error) {
	logger := ctxlog.FromContext(ctx)

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		doc, inlineErr := parse([]byte(trimmed), "<inline>", false)
		if inlineErr == nil {
			logger.Debug("Parsed inline description.")
			return doc, nil
		}
		if _, statErr := os.Stat(text); statErr != nil {
			return nil, inlineErr
		}
	}

	src, err := os.ReadFile(text)
	if err != nil {
		return nil, failure.Wrap(failure.ErrJSON, err, "description is neither valid inline JSON nor a readable file")
	}
	logger.Debug("Read description file.", "path", text, "bytes", len(src))
	return parse(src, text, strings.EqualFold(filepath.Ext(text), ".hcl"))
}

// Parse parses a description held in memory.
func Parse(src []byte, filename string) (*Document, error) {
	return parse(src, filename, strings.EqualFold(filepath.Ext(filename), ".hcl"))
}

func parse(src []byte, filename string, native bool) (*Document, error) {
	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if native {
		file, diags = parser.ParseHCL(src, filename)
	} else {
		file, diags = parser.ParseJSON(src, filename)
	}
	if diags.HasErrors() {
		return nil, failure.JSONf("failed to parse %s: %s", filename, diags.Error())
	}
	return &Document{Source: filename, body: file.Body}, nil
}

// decode decodes the top-level body into a gohcl-tagged schema struct.
func (d *Document) decode(target any, kind error) error {
	if diags := gohcl.DecodeBody(d.body, nil, target); diags.HasErrors() {
		return diagError(kind, d.Source, diags)
	}
	return nil
}

// root wraps a top-level attribute as a node.
func (d *Document) root(attr *hcl.Attribute, kind error) (Node, bool) {
	if attr == nil {
		return Node{}, false
	}
	return Node{path: attr.Name, expr: attr.Expr, kind: kind}, true
}
