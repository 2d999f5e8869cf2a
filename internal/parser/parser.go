// Package parser extracts supplier-invoice fields from raw PDF text with
// line-oriented label and column heuristics. It performs no I/O.
package parser

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
)

// spaced builds a case-insensitive fragment that tolerates whitespace between
// letters, which PDF text layers often insert inside words.
func spaced(word string) string {
	letters := strings.Split(word, "")
	return strings.Join(letters, `\s*`)
}

var (
	// The label opens the line (optionally after a qualifier such as "Tax") or
	// follows a column gap or separator, so prose like "the invoice now" is ignored.
	reInvoiceNo = regexp.MustCompile(`(?i)(?:^\s*(?:(?:tax|sales|vat|commercial|pro\s*-?\s*forma)\s+)?|\s{2,}|[|;,]\s*)` +
		`(?:` + spaced("invoice") + `|inv\.?)\s*(?:(?:` + spaced("number") + `|` + spaced("no") + `|num)\b\.?|#)` +
		`\s*[:#.\-]?\s*(.*)$`)
	reInvoiceBare = regexp.MustCompile(`(?i)^\s*` + spaced("invoice") + `\s*[:#]\s*(.*)$`)
	reInvoiceRef  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-/_.]*$`)

	reDateLabel = regexp.MustCompile(`(?i)^\s*(?:` + spaced("invoice") + `\s*|` + spaced("issue") + `\s*|` +
		spaced("tax") + `\s*` + spaced("point") + `\s*)?` + spaced("date") + `(?:\s*of\s*issue)?\b\s*[:.\-]?\s*(.*)$`)
	reDateInline = regexp.MustCompile(`(?i)(?:^|\s)((?:(?:invoice|issue)\s+|tax\s*point\s+)?date(?:\s+of\s+issue)?)\s*:`)
	reTaxPoint   = regexp.MustCompile(`(?i)^\s*` + spaced("tax") + `\s*` + spaced("point") + `\s*[:.\-]?\s*(.*)$`)

	reVendorLabel = regexp.MustCompile(`(?i)^\s*(?:` + spaced("supplier") + `|` + spaced("vendor") + `|from|sold\s*by|bill\s*from)` +
		`(?:\s*name)?\s*[:\-]\s*(.*)$`)
	reCompany = regexp.MustCompile(`(?i)\b(?:ltd|limited|llc|l\.l\.c|inc|plc|gmbh|llp|pty)\b\.?`)

	reSubtotal = regexp.MustCompile(`(?i)^\s*(?:sub\s*-?\s*total|net(?:\s*(?:total|amount|value))?|` +
		`total\s*\(?\s*(?:ex|excl|excluding|before|net\s*of)\.?\s*(?:vat|tax)\b)\b`)
	reTax      = regexp.MustCompile(`(?i)^\s*(?:vat|tax|gst|sales\s*tax)\b`)
	reDiscount = regexp.MustCompile(`(?i)^\s*(?:less\s*)?discount\b`)
	reTotal    = regexp.MustCompile(`(?i)^\s*(?:grand\s*total|total(?:\s*(?:due|cost|amount|payable|inc\.?\s*vat))?|` +
		`amount\s*(?:due|payable)|balance\s*due|final\s*cost)\b`)
	// Registration numbers and payment terms share the totals labels.
	reTotalsExcluded = regexp.MustCompile(`(?i)\breg(?:istration|istered)?\b|\bid\b|` +
		`\b(?:no|num|number)\b\.?\s*[:#]?\s*[a-z]{0,2}\s*\d|#\s*[a-z]{0,2}\d|\b\d+\s*days?\b`)

	reTableDesc   = regexp.MustCompile(`(?i)\b(?:description|details|item)\b`)
	reTableColumn = regexp.MustCompile(`(?i)\b(?:qty|quantity|unit\s*price|price|rate|amount|total|cost)\b`)

	reExcludedDate      = regexp.MustCompile(`(?i)^\s*(?:due|delivery|order|payment)\s*date`)
	reExcludedQualifier = regexp.MustCompile(`(?i)\b(?:due|delivery|order|payment)\s*$`)
	reCustomer          = regexp.MustCompile(`(?i)^\s*(?:(?:bill|ship|deliver|invoice)\s*to\b|customer)`)
)

type pendingField int

const (
	pendingNone pendingField = iota
	pendingNumber
	pendingDate
	pendingVendor
)

// Parse returns the invoice fields found in text, or nil when the text does
// not carry enough invoice structure. It never panics.
func Parse(text string) (out *entity.InvoiceFields) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("parser.recovered", "panic", r)
			out = nil
		}
	}()

	s := scan(text)
	if !s.matched() {
		return nil
	}
	fields := s.fields
	return &fields
}

// Matches is the upload predicate: does text look like an invoice?
func Matches(text string) bool {
	return Parse(text) != nil
}

type scanner struct {
	fields      entity.InvoiceFields
	vendorFound bool
	inTable     bool
	pending     pendingField
	companyLine string
}

func scan(text string) *scanner {
	s := &scanner{fields: entity.NewInvoiceFields()}
	for _, raw := range splitLines(text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		s.line(line)
	}
	if !s.vendorFound && s.companyLine != "" {
		s.fields.VendorName = s.companyLine
	}
	return s
}

func (s *scanner) matched() bool {
	if s.fields.InvoiceNumber != "" {
		return true
	}
	return s.fields.InvoiceDate != "" && (len(s.fields.Items) > 0 || s.fields.TotalSum > 0)
}

func (s *scanner) line(line string) {
	if s.resolvePending(line) {
		return
	}

	if s.header(line) {
		return
	}

	if s.totals(line) {
		s.inTable = false
		return
	}

	if s.inTable {
		if item, ok := parseRow(line); ok {
			s.fields.Items = append(s.fields.Items, item)
			return
		}
		s.inTable = false
	}

	if isTableHeader(line) {
		s.inTable = true
		return
	}

	if item, ok := parseStrictRow(line); ok {
		s.fields.Items = append(s.fields.Items, item)
		return
	}

	if s.companyLine == "" && !reCustomer.MatchString(line) && reCompany.MatchString(line) {
		s.companyLine = collapse(line)
	}
}

// resolvePending fills a label whose value was printed on the following line.
func (s *scanner) resolvePending(line string) bool {
	switch s.pending {
	case pendingNumber:
		s.pending = pendingNone
		if ref, ok := firstReference(line); ok {
			s.fields.InvoiceNumber = ref
			return true
		}
	case pendingDate:
		s.pending = pendingNone
		if d, ok := findDate(line); ok {
			s.fields.InvoiceDate = d
			return true
		}
	case pendingVendor:
		s.pending = pendingNone
		s.fields.VendorName = collapse(line)
		s.vendorFound = true
		return true
	}
	return false
}

func (s *scanner) header(line string) bool {
	found := false
	if s.fields.InvoiceNumber == "" {
		if m := reInvoiceNo.FindStringSubmatch(line); m != nil {
			if ref, ok := leadingReference(m[1]); ok {
				s.fields.InvoiceNumber = ref
				found = true
			} else if strings.TrimSpace(m[1]) == "" {
				s.pending = pendingNumber
				return true
			}
		}
		if m := reInvoiceBare.FindStringSubmatch(line); !found && m != nil {
			if ref, ok := leadingReference(m[1]); ok {
				s.fields.InvoiceNumber = ref
				found = true
			}
		}
	}

	if s.fields.InvoiceDate == "" && !reExcludedDate.MatchString(line) {
		m := reDateLabel.FindStringSubmatch(line)
		if m == nil {
			m = reTaxPoint.FindStringSubmatch(line)
		}
		if m != nil {
			if d, ok := findDate(m[1]); ok {
				s.fields.InvoiceDate = d
				found = true
			} else if strings.TrimSpace(m[1]) == "" && !found {
				s.pending = pendingDate
				return true
			}
		}
	}
	if s.fields.InvoiceDate == "" {
		if d, ok := inlineDate(line); ok {
			s.fields.InvoiceDate = d
			found = true
		}
	}
	if found {
		return true
	}

	if !s.vendorFound {
		if m := reVendorLabel.FindStringSubmatch(line); m != nil {
			v := collapse(m[1])
			if v == "" {
				s.pending = pendingVendor
			} else {
				s.fields.VendorName = v
				s.vendorFound = true
			}
			return true
		}
	}
	return false
}

func (s *scanner) totals(line string) bool {
	var target *float64
	switch {
	case reSubtotal.MatchString(line):
		target = &s.fields.Subtotal
	case reDiscount.MatchString(line):
		target = &s.fields.Discount
	case reTotal.MatchString(line):
		target = &s.fields.TotalSum
	case reTax.MatchString(line) && !reTaxPoint.MatchString(line):
		target = &s.fields.Tax
	default:
		return false
	}
	if reTotalsExcluded.MatchString(line) {
		return true
	}
	v, ok := lastAmount(line)
	if !ok {
		return false
	}
	if v < 0 {
		v = -v
	}
	// First labelled value wins.
	if *target == 0 {
		*target = v
	}
	return true
}

// inlineDate finds a "Date:" label inside a line, skipping due, delivery,
// order and payment dates.
func inlineDate(line string) (string, bool) {
	for _, loc := range reDateInline.FindAllStringSubmatchIndex(line, -1) {
		if reExcludedQualifier.MatchString(line[:loc[2]]) {
			continue
		}
		if d, ok := findDate(line[loc[1]:]); ok {
			return d, true
		}
	}
	return "", false
}

func isTableHeader(line string) bool {
	if !reTableDesc.MatchString(line) {
		return false
	}
	return len(reTableColumn.FindAllString(line, -1)) >= 1
}

// row is a line split into a description and its trailing numeric columns.
type row struct {
	description string
	unit        constants.Unit
	hasUnit     bool
	numbers     []string
}

func splitRow(line string) (row, bool) {
	toks := strings.Fields(line)
	var r row
	i := len(toks) - 1
	for ; i >= 0; i-- {
		tok := toks[i]
		if isAmountToken(tok) {
			r.numbers = append([]string{tok}, r.numbers...)
			continue
		}
		if !r.hasUnit && len(r.numbers) > 0 {
			if u, ok := constants.ParseUnit(tok); ok {
				r.unit = u
				r.hasUnit = true
				continue
			}
		}
		break
	}
	if i < 0 || len(r.numbers) == 0 {
		return row{}, false
	}
	r.description = strings.Join(toks[:i+1], " ")
	if !hasLetter(r.description) {
		return row{}, false
	}
	return r, true
}

// parseRow reads a table row as "description [qty] [unit] [unitPrice] elementCost".
func parseRow(line string) (entity.LineItem, bool) {
	r, ok := splitRow(line)
	if !ok {
		return entity.LineItem{}, false
	}
	if len(r.numbers) == 1 && !strings.Contains(r.numbers[0], ".") {
		return entity.LineItem{}, false
	}
	return r.item(), true
}

// parseStrictRow accepts a row outside a detected table only when it has the
// full "description qty unit unitPrice elementCost" shape.
func parseStrictRow(line string) (entity.LineItem, bool) {
	r, ok := splitRow(line)
	if !ok || !r.hasUnit || len(r.numbers) < 3 || !isWholeToken(r.numbers[0]) {
		return entity.LineItem{}, false
	}
	return r.item(), true
}

func (r row) item() entity.LineItem {
	item := entity.LineItem{
		Description: collapse(r.description),
		Unit:        string(constants.DefaultUnit),
	}
	if r.hasUnit {
		item.Unit = string(r.unit)
	}

	nums := make([]decimal.Decimal, len(r.numbers))
	for i, tok := range r.numbers {
		nums[i] = parseAmountDecimal(tok)
	}

	var qty, price, cost decimal.Decimal
	switch n := len(nums); {
	case n >= 3:
		qty, price, cost = nums[0], nums[n-2], nums[n-1]
	case n == 2:
		if isWholeToken(r.numbers[0]) {
			qty, cost = nums[0], nums[1]
			if qty.IsPositive() {
				price = cost.DivRound(qty, 2)
			}
		} else {
			price, cost = nums[0], nums[1]
			if price.IsPositive() {
				qty = cost.Div(price).Round(0)
			}
		}
	default:
		qty, price, cost = decimal.NewFromInt(1), nums[0], nums[0]
	}
	if price.GreaterThan(cost) {
		cost = price
	}

	item.Quantity = int(qty.Round(0).IntPart())
	item.UnitPrice, _ = price.Float64()
	item.ElementCost, _ = cost.Float64()
	return item
}

// leadingReference accepts only the first token after a label.
func leadingReference(s string) (string, bool) {
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, ":#,;.")
		if tok == "" {
			continue
		}
		if reInvoiceRef.MatchString(tok) && strings.ContainsAny(tok, "0123456789") {
			return tok, true
		}
		return "", false
	}
	return "", false
}

func firstReference(s string) (string, bool) {
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, ":#,;")
		if reInvoiceRef.MatchString(tok) && strings.ContainsAny(tok, "0123456789") {
			return tok, true
		}
	}
	return "", false
}

func splitLines(text string) []string {
	r := strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n", "\t", "  ", " ", " ")
	return strings.Split(r.Replace(text), "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
