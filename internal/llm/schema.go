package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/site-invoices/constants"
)

// FieldType is the JSON type a schema field must carry.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeArray  FieldType = "array"
)

// Field declares one output field: its name, JSON type, meaning and default.
// Array fields describe their element object with Items.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Default     any
	Items       []Field
}

// Schema is the declarative description of the model's output. It renders both
// the JSON Schema used for validation and the prompt's format instructions.
type Schema struct {
	Fields []Field
}

// InvoiceSchema describes ModelInvoice.
func InvoiceSchema() Schema {
	units := strings.Join(constants.UnitsAsStringSlice(), ", ")
	return Schema{Fields: []Field{
		{Name: "vendor_name", Type: TypeString, Default: "",
			Description: "name of the company that issued the invoice"},
		{Name: "invoice_no", Type: TypeString, Default: "",
			Description: "invoice number or reference exactly as printed"},
		{Name: "invoice_date", Type: TypeString, Default: "",
			Description: "date the invoice was issued, formatted dd/mm/yyyy"},
		{Name: "subtotal", Type: TypeNumber, Default: 0,
			Description: "sum of the line items before tax and discount"},
		{Name: "tax", Type: TypeNumber, Default: 0,
			Description: "tax or VAT amount charged"},
		{Name: "discount", Type: TypeNumber, Default: 0,
			Description: "discount amount as a positive number"},
		{Name: "total_sum", Type: TypeNumber, Default: 0,
			Description: "final amount payable; also labelled total, total cost, final cost or amount due"},
		{Name: "items", Type: TypeArray, Default: []any{},
			Description: "every charged line on the invoice, in order",
			Items: []Field{
				{Name: "description", Type: TypeString, Default: "",
					Description: "what was supplied"},
				{Name: "unit", Type: TypeString, Default: string(constants.DefaultUnit),
					Description: "unit of measure, one of: " + units},
				{Name: "quantity", Type: TypeNumber, Default: 0,
					Description: "whole number of units supplied"},
				{Name: "unit_price", Type: TypeNumber, Default: 0,
					Description: "price of a single unit"},
				{Name: "element_cost", Type: TypeNumber, Default: 0,
					Description: "line total; the largest monetary value on the line"},
			}},
	}}
}

// JSONSchema renders the schema as a JSON Schema object. Every field is
// required because the model is told to emit defaults for absent values.
func (s Schema) JSONSchema() map[string]any {
	return objectSchema(s.Fields)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		prop := map[string]any{"type": string(f.Type)}
		if f.Type == TypeArray {
			prop["items"] = objectSchema(f.Items)
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// FormatInstructions describes the expected output to the model.
func (s Schema) FormatInstructions() string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else. It must contain exactly these keys:\n")
	writeFields(&b, s.Fields, "")
	b.WriteString("\nThe JSON object must validate against this JSON Schema:\n")
	b.WriteString(mustJSON(s.JSONSchema()))
	return b.String()
}

func writeFields(b *strings.Builder, fields []Field, indent string) {
	for _, f := range fields {
		fmt.Fprintf(b, "%s- %s (%s): %s. Default: %s\n", indent, f.Name, f.Type, f.Description, mustJSON(f.Default))
		if len(f.Items) > 0 {
			fmt.Fprintf(b, "%s  each element of %s is an object with keys:\n", indent, f.Name)
			writeFields(b, f.Items, indent+"    ")
		}
	}
}

func mustJSON(v any) string {
	bs, _ := json.MarshalIndent(v, "", "  ")
	return string(bs)
}
