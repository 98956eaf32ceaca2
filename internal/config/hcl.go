package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParseHCL parses a config written in HCL, for example:
//
//	newline = "crlf"
//	include = ["*.txt", "*.bat"]
//	exclude = ["vendor/"]
//
// filename is used for context in error messages.
func ParseHCL(content []byte, filename string) (Config, error) {
	file, diags := hclsyntax.ParseConfig(content, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("invalid config: %w", diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return Config{}, fmt.Errorf("invalid config: unexpected body type %T", file.Body)
	}
	if len(body.Blocks) > 0 {
		block := body.Blocks[0]
		return Config{}, fmt.Errorf("invalid config: %s: unexpected block %q", block.TypeRange, block.Type)
	}

	// Attributes is a map; walk it in source order so the first bad line is reported.
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	var cfg Config
	for _, attr := range attrs {
		name := attr.Name
		// Config values are literals; no variables or functions are in scope.
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return Config{}, fmt.Errorf("invalid config: %w", diags)
		}

		var err error
		switch name {
		case "newline":
			cfg.Newline, err = stringValue(val)
		case "include":
			cfg.Include, err = stringList(val)
		case "exclude":
			cfg.Exclude, err = stringList(val)
		default:
			err = fmt.Errorf("unknown attribute %q", name)
		}
		if err != nil {
			return Config{}, fmt.Errorf("invalid config: %s: %w", attr.SrcRange, err)
		}
	}
	return cfg, nil
}

func stringValue(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", nil
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}

func stringList(val cty.Value) ([]string, error) {
	if val.IsNull() {
		return nil, nil
	}
	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, v := range list.AsValueSlice() {
		if v.IsNull() {
			return nil, fmt.Errorf("list element must not be null")
		}
		out = append(out, v.AsString())
	}
	return out, nil
}
