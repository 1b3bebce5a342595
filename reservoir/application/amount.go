package application

import (
	"math"
	"strconv"
	"strings"

	"fuel-reservoir/reservoir/domain"
)

// ParseAmount lê a quantidade digitada pelo usuário (ex: "0.5").
// Texto que não é número, NaN/Inf ou negativo vira *domain.AmountError
// (errors.Is(err, domain.ErrInvalidAmount)); o erro de parse fica acessível via errors.As.
func ParseAmount(text string) (float64, error) {
	in := strings.TrimSpace(text)
	v, err := strconv.ParseFloat(in, 64)
	if err != nil {
		return 0, &domain.AmountError{Input: text, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.AmountError{Input: text, Reason: "not a finite number"}
	}
	if v < 0 {
		return 0, &domain.AmountError{Input: text, Reason: "must be >= 0"}
	}
	return v, nil
}

// Recharge faz o parse do texto e reabastece o reservatório.
// Em erro de parse o reservatório não é tocado.
func Recharge(r domain.Reservoir, text string) (float64, error) {
	amount, err := ParseAmount(text)
	if err != nil {
		return r.Level(), err
	}
	return r.Replenish(amount)
}
