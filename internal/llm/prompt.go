package llm

import (
	"strings"
)

var extractionRules = []string{
	"You extract data from supplier invoices issued to a construction company.",
	"Read the invoice text below and return its fields as JSON.",
	"Treat 'total', 'total cost', 'final cost', 'amount due' and 'grand total' as total_sum.",
	"For each line, decide which number is the quantity and which is the unit price: the unit price is " +
		"the value that reads as money (usually with decimals), the quantity is a count of units.",
	"element_cost is the line total and must be the largest monetary value on its line.",
	"Populate every field. When a value is not present in the text use the field's default.",
	"Double-check every number against the text before answering.",
}

// BuildExtractionPrompt composes the primary prompt: fixed rules, the schema's
// format instructions and the raw invoice text.
func BuildExtractionPrompt(schema Schema, text string) string {
	var b strings.Builder
	b.WriteString(strings.Join(extractionRules, "\n"))
	b.WriteString("\n\n")
	b.WriteString(schema.FormatInstructions())
	b.WriteString("\n\nInvoice text:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}

// BuildRepairPrompt asks the model to rewrite its malformed output so that it
// conforms to the schema.
func BuildRepairPrompt(schema Schema, output string, cause error) string {
	var b strings.Builder
	b.WriteString("The output below was supposed to follow the format instructions but could not be parsed.\n")
	b.WriteString("Rewrite it as valid JSON that satisfies the instructions. Keep the values, fix only the format.\n\n")
	b.WriteString("Format instructions:\n")
	b.WriteString(schema.FormatInstructions())
	b.WriteString("\n\nOutput:\n")
	b.WriteString(output)
	if cause != nil {
		b.WriteString("\n\nError:\n")
		b.WriteString(cause.Error())
	}
	return b.String()
}
