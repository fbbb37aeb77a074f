package buildfile

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all possible top-level blocks from any file.
// Unknown blocks and attributes are decode errors.
type fileRoot struct {
	Types    []*typeBlock    `hcl:"type,block"`
	Rules    []*ruleBlock    `hcl:"rule,block"`
	Subjects []*subjectBlock `hcl:"subject,block"`
	Roots    []*rootBlock    `hcl:"root,block"`
}

type typeBlock struct {
	Name   string         `hcl:"name,label"`
	Schema hcl.Expression `hcl:"schema"`
}

type ruleBlock struct {
	Name       string         `hcl:"name,label"`
	Product    string         `hcl:"product"`
	Inputs     []*inputBlock  `hcl:"input,block"`
	Expression hcl.Expression `hcl:"expression,optional"`
	Handler    *string        `hcl:"handler,optional"`
	DeclRange  hcl.Range      `hcl:",def_range"`
}

// inputBlock is a direct selection unless DepProduct is set, in which case
// it fans out over Field.
type inputBlock struct {
	Product    string   `hcl:"product"`
	DepProduct *string  `hcl:"dep_product,optional"`
	Field      *string  `hcl:"field,optional"`
	FieldTypes []string `hcl:"field_types,optional"`
}

type subjectBlock struct {
	Name  string         `hcl:"name,label"`
	Type  string         `hcl:"type"`
	Value hcl.Expression `hcl:"value"`
}

type rootBlock struct {
	Subject    string   `hcl:"subject"`
	Product    string   `hcl:"product"`
	DepProduct *string  `hcl:"dep_product,optional"`
	Field      *string  `hcl:"field,optional"`
	FieldTypes []string `hcl:"field_types,optional"`
}
