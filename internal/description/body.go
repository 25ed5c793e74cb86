package description

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/npurunner/internal/failure"
)

// objectBody presents an object-valued expression as an hcl.Body whose
// attributes are the object's keys, so gohcl can decode it into a schema
// struct. Blocks are never reported.
type objectBody struct {
	attrs hcl.Attributes
	rng   hcl.Range
}

func (n Node) body() (*objectBody, error) {
	pairs, diags := hcl.ExprMap(n.expr)
	if diags.HasErrors() || pairs == nil {
		return nil, n.errorf("expected an object")
	}
	b := &objectBody{attrs: make(hcl.Attributes, len(pairs)), rng: n.expr.Range()}
	for _, kv := range pairs {
		key, err := objectKey(kv.Key)
		if err != nil {
			return nil, n.errorf("%s", err)
		}
		b.attrs[key] = &hcl.Attribute{
			Name:      key,
			Expr:      kv.Value,
			Range:     hcl.RangeBetween(kv.Key.Range(), kv.Value.Range()),
			NameRange: kv.Key.Range(),
		}
	}
	return b, nil
}

func objectKey(expr hcl.Expression) (string, error) {
	kval, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid object key: %s", diags.Error())
	}
	kstr, err := convert.Convert(kval, cty.String)
	if err != nil || kstr.IsNull() || !kstr.IsKnown() {
		return "", fmt.Errorf("object key must be a string")
	}
	return kstr.AsString(), nil
}

func (b *objectBody) Content(schema *hcl.BodySchema) (*hcl.BodyContent, hcl.Diagnostics) {
	content, remain, diags := b.PartialContent(schema)
	for name, attr := range remain.(*objectBody).attrs {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported argument",
			Detail:   fmt.Sprintf("unexpected field %q", name),
			Subject:  attr.NameRange.Ptr(),
		})
	}
	return content, diags
}

func (b *objectBody) PartialContent(schema *hcl.BodySchema) (*hcl.BodyContent, hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	content := &hcl.BodyContent{Attributes: hcl.Attributes{}, MissingItemRange: b.rng}
	remain := make(hcl.Attributes, len(b.attrs))
	for name, attr := range b.attrs {
		remain[name] = attr
	}
	for _, as := range schema.Attributes {
		attr, ok := b.attrs[as.Name]
		if !ok {
			if as.Required {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Missing required argument",
					Detail:   fmt.Sprintf("missing required field %q", as.Name),
					Subject:  b.rng.Ptr(),
				})
			}
			continue
		}
		content.Attributes[as.Name] = attr
		delete(remain, as.Name)
	}
	return content, &objectBody{attrs: remain, rng: b.rng}, diags
}

func (b *objectBody) JustAttributes() (hcl.Attributes, hcl.Diagnostics) { return b.attrs, nil }

func (b *objectBody) MissingItemRange() hcl.Range { return b.rng }

// Decode decodes an object node into a gohcl-tagged schema struct.
func (n Node) Decode(target any) error {
	body, err := n.body()
	if err != nil {
		return err
	}
	if diags := gohcl.DecodeBody(body, nil, target); diags.HasErrors() {
		return diagError(n.kind, n.path, diags)
	}
	return nil
}

// Attr returns the node for a decoded attribute, or false when absent.
func (n Node) Attr(attr *hcl.Attribute) (Node, bool) {
	if attr == nil {
		return Node{}, false
	}
	return n.child(attr.Name, attr.Expr), true
}

// diagError turns diagnostics into a failure of the given kind, using the
// detail of each error where present.
func diagError(kind error, path string, diags hcl.Diagnostics) error {
	var msgs []string
	for _, d := range diags.Errs() {
		msg := d.Error()
		if hd, ok := d.(*hcl.Diagnostic); ok {
			msg = hd.Detail
			if msg == "" {
				msg = hd.Summary
			}
		}
		msgs = append(msgs, msg)
	}
	return &failure.Error{Kind: kind, Msg: path + ": " + strings.Join(msgs, "; ")}
}
