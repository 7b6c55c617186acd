package receivables

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

// Key identifies an invoice across runs: the debtor's tax id plus the
// document folio.
type Key struct {
	DebtorID      string
	DocumentFolio string
}

func (k Key) String() string {
	return k.DebtorID + "/" + k.DocumentFolio
}

// KeyOf extracts the composite key of a live row.
func KeyOf(inv models.ReceivableInvoice) Key {
	return Key{DebtorID: inv.DebtorID, DocumentFolio: inv.DocumentFolio}
}

func historyKey(row models.ReceivableHistory) Key {
	return Key{DebtorID: row.DebtorID, DocumentFolio: row.DocumentFolio}
}

var folioFloatRe = regexp.MustCompile(`^(-?\d+)\.0+$`)

// NormalizeFolio strips the spurious ".0" suffix spreadsheets and JSON
// floats add to numeric folios. Non-numeric folios pass through trimmed.
func NormalizeFolio(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := folioFloatRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

// SortKeys orders keys by debtor then folio.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DebtorID != keys[j].DebtorID {
			return keys[i].DebtorID < keys[j].DebtorID
		}
		return keys[i].DocumentFolio < keys[j].DocumentFolio
	})
}

// Fingerprint hashes the reconciliation-relevant content of a feed. Two
// feeds with the same fingerprint reconcile to the same live snapshot.
func Fingerprint(invoices []models.ReceivableInvoice) string {
	lines := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		lines = append(lines, fmt.Sprintf("%s|%s|%d|%d|%d|%s",
			inv.DebtorID, inv.DocumentFolio, inv.TotalAmount, inv.AmountPaid, inv.Balance, deref(inv.DueDate)))
	}
	sort.Strings(lines)
	sum := sha256.New()
	for _, line := range lines {
		sum.Write([]byte(line))
		sum.Write([]byte{'\n'})
	}
	return hex.EncodeToString(sum.Sum(nil))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
