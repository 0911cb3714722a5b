package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ExpressionVariable binds a short name used in a formula to a symbol price field
type ExpressionVariable struct {
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	PriceType   PriceType `json:"price_type"`
	Description string    `json:"description"`
}

// NewExpressionVariable creates a variable reading the close price
func NewExpressionVariable(name, symbol string) ExpressionVariable {
	return ExpressionVariable{Name: name, Symbol: symbol, PriceType: PriceClose}
}

// VariableNames returns the sorted names of a binding set
func VariableNames(vars map[string]ExpressionVariable) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariableSymbols returns the distinct symbols referenced by a binding set, sorted
func VariableSymbols(vars map[string]ExpressionVariable) []string {
	seen := make(map[string]bool, len(vars))
	symbols := make([]string, 0, len(vars))
	for _, v := range vars {
		if v.Symbol == "" || seen[v.Symbol] {
			continue
		}
		seen[v.Symbol] = true
		symbols = append(symbols, v.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// BindingsHash is a content hash of a binding set, independent of map order
func BindingsHash(vars map[string]ExpressionVariable) string {
	h := sha256.New()
	for _, name := range VariableNames(vars) {
		v := vars[name]
		pt := v.PriceType
		if pt == "" {
			pt = PriceClose
		}
		h.Write([]byte(strings.Join([]string{name, v.Symbol, string(pt)}, "\x1f")))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
