package receivables

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

// RawRecord is one invoice as delivered by the source, before normalization.
type RawRecord map[string]any

// ErrMissingKey rejects a record carrying neither debtor id nor folio.
var ErrMissingKey = errors.New("record has neither debtor id nor document folio")

var (
	debtorIDFields    = []string{"Rut", "rut", "RUT", "debtor_id"}
	folioFields       = []string{"FolioDocumento", "folioDocumento", "Folio", "folio", "document_folio"}
	debtorNameFields  = []string{"RznSocial", "razonSocial", "debtor_name"}
	salespersonFields = []string{"NombreVendedor", "vendedor", "salesperson_name"}
	docTypeFields     = []string{"Documento", "TipoDocumento", "document_type"}
	issueDateFields   = []string{"Fecha", "FechaEmision", "issue_date"}
	dueDateFields     = []string{"FechaVencimiento", "due_date"}
	termsFields       = []string{"CondicionVenta", "payment_terms"}
	totalFields       = []string{"Total", "total_amount"}
	paidFields        = []string{"TotalCP", "amount_paid"}
	balanceFields     = []string{"Saldo", "balance"}
)

var dateLayouts = []string{
	time.DateOnly,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
}

var (
	dotThousandsRe   = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
	commaThousandsRe = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	decimalCommaRe   = regexp.MustCompile(`^-?\d+,\d+$`)
)

// FieldIssue describes a field that was coerced to a fallback value.
type FieldIssue struct {
	Field  string
	Value  any
	Reason string
}

// Normalized is a canonical invoice plus the coercions applied to reach it.
type Normalized struct {
	Invoice models.ReceivableInvoice
	Issues  []FieldIssue
}

type recordKey struct {
	DebtorID      string `validate:"required_without=DocumentFolio"`
	DocumentFolio string `validate:"required_without=DebtorID"`
}

// Normalizer converts raw source records into canonical invoices.
type Normalizer struct {
	validate *validator.Validate
}

func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Normalize is pure: it never touches storage and only fails when the
// record cannot be keyed at all.
func (n *Normalizer) Normalize(raw RawRecord) (Normalized, error) {
	var out Normalized
	key := recordKey{
		DebtorID:      strings.TrimSpace(stringValue(lookup(raw, debtorIDFields))),
		DocumentFolio: NormalizeFolio(stringValue(lookup(raw, folioFields))),
	}
	if err := n.validate.Struct(key); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMissingKey, err)
	}
	if key.DebtorID == "" {
		out.Issues = append(out.Issues, FieldIssue{Field: "debtor_id", Reason: "missing"})
	}
	if key.DocumentFolio == "" {
		out.Issues = append(out.Issues, FieldIssue{Field: "document_folio", Reason: "missing"})
	}

	inv := models.ReceivableInvoice{
		DebtorID:        key.DebtorID,
		DocumentFolio:   key.DocumentFolio,
		DebtorName:      CleanText(stringValue(lookup(raw, debtorNameFields))),
		SalespersonName: CleanText(stringValue(lookup(raw, salespersonFields))),
		DocumentType:    CleanText(stringValue(lookup(raw, docTypeFields))),
		PaymentTerms:    CleanText(stringValue(lookup(raw, termsFields))),
	}

	inv.IssueDate = out.date("issue_date", lookup(raw, issueDateFields))
	inv.DueDate = out.date("due_date", lookup(raw, dueDateFields))
	inv.TotalAmount = out.amount("total_amount", lookup(raw, totalFields))
	inv.AmountPaid = out.amount("amount_paid", lookup(raw, paidFields))
	inv.Balance = out.amount("balance", lookup(raw, balanceFields))

	out.Invoice = inv
	return out, nil
}

func (n *Normalized) date(field string, value any) *string {
	s := strings.TrimSpace(stringValue(value))
	if s == "" {
		return nil
	}
	parsed, ok := ParseDate(s)
	if !ok {
		n.Issues = append(n.Issues, FieldIssue{Field: field, Value: value, Reason: "unparseable date"})
		return nil
	}
	return &parsed
}

func (n *Normalized) amount(field string, value any) int64 {
	amount, ok := ParseAmount(value)
	if !ok {
		n.Issues = append(n.Issues, FieldIssue{Field: field, Value: value, Reason: "non-numeric amount"})
	}
	return amount
}

// ParseDate returns s as YYYY-MM-DD when it matches a known layout.
func ParseDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

// ParseAmount coerces a money value to an integer, rounding half away from
// zero. Missing values are 0 and ok; garbage is 0 and not ok.
func ParseAmount(value any) (int64, bool) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := value.(type) {
	case nil:
		return 0, true
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = parseAmountString(v)
	default:
		d, err = parseAmountString(fmt.Sprint(v))
	}
	if err != nil {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, nil
	}
	switch {
	case dotThousandsRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case commaThousandsRe.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case decimalCommaRe.MatchString(s):
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// CleanText trims s and removes diacritics ("Peñalolén" -> "Penalolen").
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func lookup(raw RawRecord, fields []string) any {
	for _, field := range fields {
		if v, ok := raw[field]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d.String()
		}
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
