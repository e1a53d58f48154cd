package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// extractTotals reads the monetary totals from the payload's summary block,
// coercing to two-decimal precision. Missing or malformed totals default to
// zero; a permissive policy, not a validation failure.
func extractTotals(payload map[string]any) (taxable, tax, payable float64) {
	summary, ok := payload["resumen"].(map[string]any)
	if !ok {
		return 0, 0, 0
	}
	taxable = round2(coerceNumber(summary["totalGravada"]))
	tax = round2(coerceNumber(summary["totalIva"]))
	payable = round2(coerceNumber(summary["totalPagar"]))
	return taxable, tax, payable
}

func coerceNumber(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
