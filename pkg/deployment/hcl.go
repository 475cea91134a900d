package deployment

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// LoadHCL parses a deployment from HCL bytes:
//
//	name = "azuregoat"
//
//	variable "region" {
//	  default = "eastus"
//	}
//
//	resource "storage/account" "store" {
//	  attributes = {
//	    account_name = "appdata$${{ identifier.suffix }}"
//	  }
//	  outputs = ["host", "access_key"]
//	}
//
//	output "endpoint_url" {
//	  value = "https://$${{ resources.store.host }}/"
//	}
//
// Engine reference markers are written $${{ ... }} so HCL's own template
// interpolation leaves them intact.
func LoadHCL(data []byte, filename string) (*Deployment, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.ParseError(filename, fmt.Errorf("%s", diags.Error()))
	}

	bodySchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "name", Required: true},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "resource", LabelNames: []string{"kind", "name"}},
			{Type: "output", LabelNames: []string{"name"}},
		},
	}

	content, moreDiags := file.Body.Content(bodySchema)
	diags = append(diags, moreDiags...)
	if diags.HasErrors() {
		return nil, errors.ParseError(filename, fmt.Errorf("%s", diags.Error()))
	}

	dep := &Deployment{
		Variables: make(map[string]string),
		Outputs:   make(map[string]string),
	}

	if attr, ok := content.Attributes["name"]; ok {
		name, err := stringValue(attr.Expr)
		if err != nil {
			return nil, errors.ParseError(filename, fmt.Errorf("name: %w", err))
		}
		dep.Name = name
	}

	for _, block := range content.Blocks.OfType("variable") {
		if err := parseVariableBlock(block, dep); err != nil {
			return nil, errors.ParseError(filename, err)
		}
	}

	for _, block := range content.Blocks.OfType("resource") {
		res, err := parseResourceBlock(block)
		if err != nil {
			return nil, errors.ParseError(filename, err)
		}
		dep.Resources = append(dep.Resources, res)
	}

	for _, block := range content.Blocks.OfType("output") {
		if err := parseOutputBlock(block, dep); err != nil {
			return nil, errors.ParseError(filename, err)
		}
	}

	if err := Validate(dep); err != nil {
		return nil, err
	}

	return dep, nil
}

func parseVariableBlock(block *hcl.Block, dep *Deployment) error {
	name := block.Labels[0]

	content, diags := block.Body.Content(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "default"},
		},
	})
	if diags.HasErrors() {
		return fmt.Errorf("variable %q: %s", name, diags.Error())
	}

	if attr, ok := content.Attributes["default"]; ok {
		val, err := stringValue(attr.Expr)
		if err != nil {
			return fmt.Errorf("variable %q default: %w", name, err)
		}
		dep.Variables[name] = val
	} else {
		dep.Variables[name] = ""
	}

	return nil
}

func parseResourceBlock(block *hcl.Block) (Resource, error) {
	res := Resource{
		Kind:       block.Labels[0],
		Name:       block.Labels[1],
		Attributes: make(map[string]string),
	}

	content, diags := block.Body.Content(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "attributes"},
			{Name: "depends_on"},
			{Name: "outputs"},
		},
	})
	if diags.HasErrors() {
		return res, fmt.Errorf("resource %q: %s", res.Name, diags.Error())
	}

	if attr, ok := content.Attributes["attributes"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		if valDiags.HasErrors() {
			return res, fmt.Errorf("resource %q attributes: %s", res.Name, valDiags.Error())
		}
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return res, fmt.Errorf("resource %q attributes must be a map", res.Name)
		}
		for k, v := range val.AsValueMap() {
			s, err := ctyString(v)
			if err != nil {
				return res, fmt.Errorf("resource %q attribute %q: %w", res.Name, k, err)
			}
			res.Attributes[k] = s
		}
	}

	var err error
	if res.DependsOn, err = stringListAttr(content, "depends_on"); err != nil {
		return res, fmt.Errorf("resource %q: %w", res.Name, err)
	}
	if res.Outputs, err = stringListAttr(content, "outputs"); err != nil {
		return res, fmt.Errorf("resource %q: %w", res.Name, err)
	}

	return res, nil
}

func parseOutputBlock(block *hcl.Block, dep *Deployment) error {
	name := block.Labels[0]

	content, diags := block.Body.Content(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "value", Required: true},
		},
	})
	if diags.HasErrors() {
		return fmt.Errorf("output %q: %s", name, diags.Error())
	}

	val, err := stringValue(content.Attributes["value"].Expr)
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	dep.Outputs[name] = val

	return nil
}

func stringListAttr(content *hcl.BodyContent, name string) ([]string, error) {
	attr, ok := content.Attributes[name]
	if !ok {
		return nil, nil
	}

	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %s", name, diags.Error())
	}
	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("%s must be a list of strings", name)
	}

	var out []string
	for _, v := range val.AsValueSlice() {
		s, err := ctyString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringValue(expr hcl.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%s", diags.Error())
	}
	return ctyString(val)
}

func ctyString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", fmt.Errorf("unexpected null value")
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("expected string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}
