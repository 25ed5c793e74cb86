package description

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/npurunner/internal/failure"
)

// Node is one value of a description tree.
type Node struct {
	path string
	expr hcl.Expression
	// kind is the failure kind reported for malformed values.
	kind error
}

// Entry is a keyed child of an object node, or an indexed element of an
// array node.
type Entry struct {
	Key  string
	Node Node
}

func (n Node) Path() string { return n.path }

func (n Node) errorf(format string, args ...any) error {
	return &failure.Error{Kind: n.kind, Msg: n.path + ": " + fmt.Sprintf(format, args...)}
}

func (n Node) child(key string, expr hcl.Expression) Node {
	return Node{path: n.path + "." + key, expr: expr, kind: n.kind}
}

// Entries lists the children of an object or array node in declaration
// order.
func (n Node) Entries() ([]Entry, error) {
	if pairs, diags := hcl.ExprMap(n.expr); !diags.HasErrors() && pairs != nil {
		out := make([]Entry, 0, len(pairs))
		for _, kv := range pairs {
			key, err := objectKey(kv.Key)
			if err != nil {
				return nil, n.errorf("%s", err)
			}
			out = append(out, Entry{Key: key, Node: n.child(key, kv.Value)})
		}
		return out, nil
	}
	if items, diags := hcl.ExprList(n.expr); !diags.HasErrors() && items != nil {
		out := make([]Entry, 0, len(items))
		for i, item := range items {
			key := strconv.Itoa(i)
			out = append(out, Entry{Key: key, Node: n.child(key, item)})
		}
		return out, nil
	}
	return nil, n.errorf("expected an object or an array")
}

func (n Node) value() (cty.Value, error) {
	v, diags := n.expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, n.errorf("%s", diags.Error())
	}
	if v.IsNull() || !v.IsKnown() {
		return cty.NilVal, n.errorf("value is null")
	}
	return v, nil
}

func (n Node) String() (string, error) {
	v, err := n.value()
	if err != nil {
		return "", err
	}
	cv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", n.errorf("expected a string, got %s", v.Type().FriendlyName())
	}
	var s string
	if err := gocty.FromCtyValue(cv, &s); err != nil {
		return "", n.errorf("%s", err)
	}
	return s, nil
}

// Int accepts numbers and numeric strings; strings may carry a 0x, 0o or
// 0b prefix.
func (n Node) Int() (int, error) {
	v, err := n.value()
	if err != nil {
		return 0, err
	}
	if v.Type() == cty.String {
		i, perr := strconv.ParseInt(strings.TrimSpace(v.AsString()), 0, 64)
		if perr != nil {
			return 0, n.errorf("expected an integer, got %q", v.AsString())
		}
		return int(i), nil
	}
	cv, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, n.errorf("expected an integer, got %s", v.Type().FriendlyName())
	}
	var i int
	if err := gocty.FromCtyValue(cv, &i); err != nil {
		return 0, n.errorf("expected an integer: %s", err)
	}
	return i, nil
}

// Uint is Int for unsigned 64-bit values.
func (n Node) Uint() (uint64, error) {
	v, err := n.value()
	if err != nil {
		return 0, err
	}
	if v.Type() == cty.String {
		u, perr := strconv.ParseUint(strings.TrimSpace(v.AsString()), 0, 64)
		if perr != nil {
			return 0, n.errorf("expected an unsigned integer, got %q", v.AsString())
		}
		return u, nil
	}
	cv, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, n.errorf("expected an unsigned integer, got %s", v.Type().FriendlyName())
	}
	var u uint64
	if err := gocty.FromCtyValue(cv, &u); err != nil {
		return 0, n.errorf("expected an unsigned integer: %s", err)
	}
	return u, nil
}
