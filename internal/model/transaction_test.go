package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		raw  string
		want TransactionType
	}{
		{"Invoice", TypeInvoice},
		{"  BILL ", TypeBill},
		{"Bill Payment (Check)", TypeBill},
		{"Check", TypeCheck},
		{"Cheque", TypeCheck},
		{"Credit Card Expense", TypeCreditCard},
		{"Credit-Card", TypeCreditCard},
		{"credit_card", TypeCreditCard},
		{"CreditCard", TypeCreditCard},
		{"Cash Expense", TypeCash},
		{"Expense", TypeExpense},
		{"Journal Entry", TypeExpense},
		{"", TypeExpense},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTransactionType(tt.raw))
		})
	}
}

func TestTransactionType_IsRevenue(t *testing.T) {
	assert.True(t, TypeInvoice.IsRevenue())
	assert.False(t, TypeBill.IsRevenue())
	assert.False(t, TypeCreditCard.IsRevenue())
}
