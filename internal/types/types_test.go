package types

import (
	"testing"
)

func TestTransactionType(t *testing.T) {
	tests := []struct {
		name    string
		txType  TransactionType
		valid   bool
		isTrade bool
	}{
		{name: "buy", txType: TransactionBuy, valid: true, isTrade: true},
		{name: "sell", txType: TransactionSell, valid: true, isTrade: true},
		{name: "deposit", txType: TransactionDeposit, valid: true, isTrade: false},
		{name: "withdrawal", txType: TransactionWithdrawal, valid: true, isTrade: false},
		{name: "unknown", txType: TransactionType("DIVIDEND"), valid: false, isTrade: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.txType.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.txType.IsTrade(); got != tt.isTrade {
				t.Errorf("IsTrade() = %v, want %v", got, tt.isTrade)
			}
		})
	}
}
