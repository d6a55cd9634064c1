package funding

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const detailSeparator = " • "

// Casers and printers carry per-call state, so each call builds its own.
func title(s string) string {
	return cases.Title(language.AmericanEnglish).String(s)
}

// Details builds the one-line summary shown for an instance, e.g.
// "Chase • $5,000.00" for ACH. Empty parts are skipped.
func Details(t Type, f map[string]string) string {
	var parts []string
	switch t {
	case TypeACAT:
		parts = []string{f["deliveringFirm"], transferType(f["transferType"])}
	case TypeACH:
		parts = []string{f["bankName"], Amount(f["transferAmount"])}
	case TypeInitialACH:
		parts = []string{f["bankName"], Amount(f["amount"]), f["transferDate"]}
	case TypeWithdrawal:
		parts = []string{Amount(f["amount"]), title(f["frequency"]), startDate(f["startDate"])}
	case TypeContribution:
		parts = []string{Amount(f["amount"]), title(f["frequency"]), taxYear(f["taxYear"])}
	}
	return join(parts)
}

func join(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, detailSeparator)
}

// Amount formats a user-entered amount as US dollars. Input that does not
// parse as a finite number is returned unchanged.
func Amount(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	return message.NewPrinter(language.AmericanEnglish).Sprintf("$%.2f", v)
}

func transferType(v string) string {
	if v == "" {
		return ""
	}
	return title(v) + " transfer"
}

func startDate(v string) string {
	if v == "" {
		return ""
	}
	return "from " + v
}

func taxYear(v string) string {
	if v == "" {
		return ""
	}
	return "Tax year " + v
}
