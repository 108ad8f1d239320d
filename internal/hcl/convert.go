package hcl

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// decodeResources binds the attributes of a resources block. Each attribute
// is either a single value applying to every target or a list with one value
// per target.
func decodeResources(ctx context.Context, block *resourcesBlock) (model.ResourceSpec, error) {
	var spec model.ResourceSpec
	if block == nil || block.Body == nil {
		return spec, nil
	}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return spec, diags
	}

	// Map iteration order would make the first reported error random.
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := attrs[name]
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return spec, diags
		}

		var err error
		switch name {
		case "partition":
			spec.Partition, err = decodeField[string](ctx, val, cty.String)
		case "cpus":
			spec.CPUs, err = decodeField[int](ctx, val, cty.Number)
		case "mem":
			spec.Memory, err = decodeField[string](ctx, val, cty.String)
		case "time":
			spec.Time, err = decodeField[string](ctx, val, cty.String)
		case "name":
			spec.Name, err = decodeField[string](ctx, val, cty.String)
		default:
			err = fmt.Errorf("unsupported resource (want partition, cpus, mem, time or name)")
		}
		if err != nil {
			return spec, attrError(attr, err)
		}
	}
	return spec, nil
}

// decodeField converts val into a Field of T. Lists and tuples become
// list-valued fields, null leaves the field unset, anything else is a
// scalar.
func decodeField[T any](ctx context.Context, val cty.Value, elem cty.Type) (model.Field[T], error) {
	logger := ctxlog.FromContext(ctx)

	if val.IsNull() {
		return model.Unset[T](), nil
	}
	if !val.IsWhollyKnown() {
		return model.Unset[T](), fmt.Errorf("value is not known")
	}

	ty := val.Type()
	if ty.IsListType() || ty.IsTupleType() {
		listVal, err := convert.Convert(val, cty.List(elem))
		if err != nil {
			return model.Unset[T](), fmt.Errorf("cannot convert %s to list of %s: %w", ty.FriendlyName(), elem.FriendlyName(), err)
		}
		var out []T
		if err := gocty.FromCtyValue(listVal, &out); err != nil {
			return model.Unset[T](), err
		}
		logger.Debug("Decoded list resource.", "from", ty.FriendlyName(), "len", len(out))
		return model.List(out...), nil
	}

	scalar, err := convert.Convert(val, elem)
	if err != nil {
		return model.Unset[T](), fmt.Errorf("cannot convert %s to %s: %w", ty.FriendlyName(), elem.FriendlyName(), err)
	}
	if !ty.Equals(scalar.Type()) {
		logger.Debug("Implicitly converted value type.", "from", ty.FriendlyName(), "to", scalar.Type().FriendlyName())
	}
	var v T
	if err := gocty.FromCtyValue(scalar, &v); err != nil {
		return model.Unset[T](), err
	}
	return model.Scalar(v), nil
}

func attrError(attr *hcl.Attribute, err error) error {
	return fmt.Errorf("%s: attribute %q: %w", attr.Range.String(), attr.Name, err)
}
