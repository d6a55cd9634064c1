package funding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetails(t *testing.T) {
	tests := []struct {
		name   string
		typ    Type
		fields map[string]string
		want   string
	}{
		{"ach", TypeACH, map[string]string{"bankName": "Chase", "transferAmount": "2500.5"}, "Chase • $2,500.50"},
		{"ach without amount", TypeACH, map[string]string{"bankName": "Chase"}, "Chase"},
		{"acat", TypeACAT, map[string]string{"deliveringFirm": "Vanguard", "transferType": "full"}, "Vanguard • Full transfer"},
		{"initial ach", TypeInitialACH, map[string]string{"bankName": "Wells Fargo", "amount": "$10,000", "transferDate": "2026-02-01"}, "Wells Fargo • $10,000.00 • 2026-02-01"},
		{"contribution", TypeContribution, map[string]string{"amount": "500", "frequency": "monthly", "taxYear": "2026"}, "$500.00 • Monthly • Tax year 2026"},
		{"empty", TypeWithdrawal, map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Details(tt.typ, tt.fields))
		})
	}
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "$1,234,567.00", Amount("1234567"))
	assert.Equal(t, "$0.99", Amount(" .99 "))
	assert.Equal(t, "about five grand", Amount("about five grand"))
	assert.Equal(t, "", Amount("  "))
	assert.Equal(t, "NaN", Amount("NaN"))
	assert.Equal(t, "Inf", Amount("Inf"))
	assert.Equal(t, "-infinity", Amount("-infinity"))
}
