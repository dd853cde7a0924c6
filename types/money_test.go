package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"KES", KES(1500), 1500, "KES", "KSh 1,500"},
		{"KES small", KES(99), 99, "KES", "KSh 99"},
		{"KES large", KES(150000), 150000, "KES", "KSh 150,000"},
		{"Zero lower-case code", Zero("kes"), 0, "KES", "KSh 0"},
		{"Unknown currency", Zero("xyz"), 0, "XYZ", "XYZ 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return KES(100).Add(KES(200)) }, KES(300)},
		{"Subtract", func() Money { return KES(500).Subtract(KES(200)) }, KES(300)},
		{"Multiply", func() Money { return KES(100).Multiply(3) }, KES(300)},
		{"Sum", func() Money { return Sum(KES(1), KES(2), KES(3)) }, KES(6)},
		{"Sum empty", func() Money { return Sum() }, Zero("KES")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = KES(100).Add(Money{Amount: 100, Currency: "USD"})
}

func TestMoneyWithin(t *testing.T) {
	lo, hi := KES(1), KES(150000)
	tests := []struct {
		amount int64
		want   bool
	}{
		{0, false},
		{1, true},
		{1500, true},
		{150000, true},
		{150001, false},
	}
	for _, tt := range tests {
		if got := KES(tt.amount).Within(lo, hi); got != tt.want {
			t.Errorf("KES(%d).Within = %v, want %v", tt.amount, got, tt.want)
		}
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{KES(0), "0"},
		{KES(999), "999"},
		{KES(1000), "1,000"},
		{KES(1234567), "1,234,567"},
		{KES(-1500), "-1,500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(KES(1500))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":1500,"currency":"KES","display":"KSh 1,500"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}
}
