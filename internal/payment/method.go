package payment

import (
	"strings"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
)

type Method string

const (
	MethodCash     Method = "CASH"
	MethodMockCard Method = "MOCK_CARD"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCash, MethodMockCard:
		return m, nil
	default:
		return "", apperr.Validation("unsupported payment method %q", s)
	}
}
