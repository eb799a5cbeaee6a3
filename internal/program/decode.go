package program

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/gridwalk/internal/schema"
)

var archetypeSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "extends"},
		{Name: "shared"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "field", LabelNames: []string{"name"}},
		{Type: "ability", LabelNames: []string{"name"}},
	},
}

var fieldSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
	},
}

var abilitySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "with", Required: true},
		{Name: "phase"},
		{Name: "handler", Required: true},
		{Name: "params"},
	},
}

func decodeArchetype(block *hcl.Block) (*schema.Archetype, error) {
	name := block.Labels[0]
	var kind schema.Kind
	switch block.Type {
	case "node":
		kind = schema.KindNode
	case "edge":
		kind = schema.KindEdge
	case "walker":
		kind = schema.KindWalker
	case "object":
		kind = schema.KindObject
	}
	arch := &schema.Archetype{Name: name, Kind: kind}

	content, diags := block.Body.Content(archetypeSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("archetype %q: %w", name, diags)
	}
	if attr, ok := content.Attributes["extends"]; ok {
		s, err := stringAttr(attr)
		if err != nil {
			return nil, fmt.Errorf("archetype %q: %w", name, err)
		}
		arch.Extends = s
	}
	if attr, ok := content.Attributes["shared"]; ok {
		if kind != schema.KindNode {
			return nil, fmt.Errorf("archetype %q: only node archetypes can be shared", name)
		}
		v, err := evalAttr(attr, cty.Bool)
		if err != nil {
			return nil, fmt.Errorf("archetype %q: %w", name, err)
		}
		arch.Shared = v.True()
	}

	for _, b := range content.Blocks {
		switch b.Type {
		case "field":
			f, err := decodeField(b)
			if err != nil {
				return nil, fmt.Errorf("archetype %q: %w", name, err)
			}
			arch.Fields = append(arch.Fields, f)
		case "ability":
			ab, err := decodeAbility(b, arch)
			if err != nil {
				return nil, fmt.Errorf("archetype %q: %w", name, err)
			}
			arch.Abilities = append(arch.Abilities, ab)
		}
	}
	return arch, nil
}

func decodeField(block *hcl.Block) (schema.FieldSpec, error) {
	spec := schema.FieldSpec{Name: block.Labels[0]}
	content, diags := block.Body.Content(fieldSchema)
	if diags.HasErrors() {
		return spec, fmt.Errorf("field %q: %w", spec.Name, diags)
	}
	ty, err := typeFromExpr(content.Attributes["type"].Expr)
	if err != nil {
		return spec, fmt.Errorf("field %q: %w", spec.Name, err)
	}
	spec.Type = ty
	if attr, ok := content.Attributes["default"]; ok {
		v, err := evalAttr(attr, ty)
		if err != nil {
			return spec, fmt.Errorf("field %q default: %w", spec.Name, err)
		}
		spec.Default = v
	}
	return spec, nil
}

// decodeAbility normalizes a declaration to (actor, target) form. Inside a
// walker block, `with` names the location archetype being visited; inside a
// node or edge block, `with` names the visiting walker.
func decodeAbility(block *hcl.Block, owner *schema.Archetype) (schema.AbilityDecl, error) {
	decl := schema.AbilityDecl{Name: block.Labels[0]}
	content, diags := block.Body.Content(abilitySchema)
	if diags.HasErrors() {
		return decl, fmt.Errorf("ability %q: %w", decl.Name, diags)
	}
	with, err := stringAttr(content.Attributes["with"])
	if err != nil {
		return decl, fmt.Errorf("ability %q: %w", decl.Name, err)
	}
	switch owner.Kind {
	case schema.KindWalker:
		decl.Actor = owner.Name
		decl.Target = with
	case schema.KindNode, schema.KindEdge:
		decl.Actor = with
		decl.Target = owner.Name
	default:
		return decl, fmt.Errorf("ability %q: object archetypes declare no abilities", decl.Name)
	}
	if attr, ok := content.Attributes["phase"]; ok {
		s, err := stringAttr(attr)
		if err != nil {
			return decl, fmt.Errorf("ability %q: %w", decl.Name, err)
		}
		decl.Phase, err = schema.ParsePhase(s)
		if err != nil {
			return decl, fmt.Errorf("ability %q: %w", decl.Name, err)
		}
	}
	decl.Handler, err = stringAttr(content.Attributes["handler"])
	if err != nil {
		return decl, fmt.Errorf("ability %q: %w", decl.Name, err)
	}
	if attr, ok := content.Attributes["params"]; ok {
		m, err := objectAttr(attr)
		if err != nil {
			return decl, fmt.Errorf("ability %q params: %w", decl.Name, err)
		}
		decl.Params = m
	}
	return decl, nil
}

var letSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "fields"},
	},
}

func decodeLet(block *hcl.Block) (*LetStmt, error) {
	stmt := &LetStmt{Handle: block.Labels[0]}
	content, diags := block.Body.Content(letSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("let %q: %w", stmt.Handle, diags)
	}
	var err error
	stmt.Archetype, err = stringAttr(content.Attributes["type"])
	if err != nil {
		return nil, fmt.Errorf("let %q: %w", stmt.Handle, err)
	}
	if attr, ok := content.Attributes["fields"]; ok {
		stmt.Fields, err = objectAttr(attr)
		if err != nil {
			return nil, fmt.Errorf("let %q fields: %w", stmt.Handle, err)
		}
	}
	return stmt, nil
}

var connectSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "from", Required: true},
		{Name: "to", Required: true},
		{Name: "type", Required: true},
		{Name: "directed"},
		{Name: "fields"},
	},
}

func decodeConnect(block *hcl.Block) (*ConnectStmt, error) {
	stmt := &ConnectStmt{Directed: true}
	content, diags := block.Body.Content(connectSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("connect: %w", diags)
	}
	var err error
	if stmt.From, err = stringAttr(content.Attributes["from"]); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if stmt.To, err = stringAttr(content.Attributes["to"]); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if stmt.Archetype, err = stringAttr(content.Attributes["type"]); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if attr, ok := content.Attributes["directed"]; ok {
		v, err := evalAttr(attr, cty.Bool)
		if err != nil {
			return nil, fmt.Errorf("connect directed: %w", err)
		}
		stmt.Directed = v.True()
	}
	if attr, ok := content.Attributes["fields"]; ok {
		if stmt.Fields, err = objectAttr(attr); err != nil {
			return nil, fmt.Errorf("connect fields: %w", err)
		}
	}
	return stmt, nil
}

var spawnSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "walker", Required: true},
		{Name: "start", Required: true},
		{Name: "args"},
	},
}

func decodeSpawn(block *hcl.Block) (*SpawnStmt, error) {
	stmt := &SpawnStmt{}
	content, diags := block.Body.Content(spawnSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("spawn: %w", diags)
	}
	var err error
	if stmt.Walker, err = stringAttr(content.Attributes["walker"]); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	if stmt.Start, err = stringAttr(content.Attributes["start"]); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	if attr, ok := content.Attributes["args"]; ok {
		if stmt.Args, err = objectAttr(attr); err != nil {
			return nil, fmt.Errorf("spawn args: %w", err)
		}
	}
	return stmt, nil
}

// typeFromExpr converts a type keyword expression into its cty type.
func typeFromExpr(expr hcl.Expression) (cty.Type, error) {
	traversal, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(traversal) != 1 {
		return cty.NilType, fmt.Errorf("type must be a simple keyword like string, number, or bool")
	}
	switch traversal.RootName() {
	case "string":
		return cty.String, nil
	case "number":
		return cty.Number, nil
	case "bool":
		return cty.Bool, nil
	case "any":
		return cty.DynamicPseudoType, nil
	case "list":
		return cty.List(cty.DynamicPseudoType), nil
	case "map":
		return cty.Map(cty.DynamicPseudoType), nil
	}
	return cty.NilType, fmt.Errorf("unsupported type keyword %q", traversal.RootName())
}

func evalAttr(attr *hcl.Attribute, ty cty.Type) (cty.Value, error) {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w", diags)
	}
	if ty != cty.NilType {
		converted, err := convert.Convert(v, ty)
		if err != nil {
			return cty.NilVal, err
		}
		return converted, nil
	}
	return v, nil
}

func stringAttr(attr *hcl.Attribute) (string, error) {
	v, err := evalAttr(attr, cty.String)
	if err != nil {
		return "", err
	}
	if v.IsNull() {
		return "", fmt.Errorf("attribute %q must not be null", attr.Name)
	}
	return v.AsString(), nil
}

func objectAttr(attr *hcl.Attribute) (map[string]cty.Value, error) {
	v, err := evalAttr(attr, cty.NilType)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("attribute %q must be an object", attr.Name)
	}
	if v.LengthInt() == 0 {
		return map[string]cty.Value{}, nil
	}
	return v.AsValueMap(), nil
}
