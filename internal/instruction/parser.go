// Package instruction разбирает входные записи о пополнениях.
package instruction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/load-velocity/internal/model"
)

// ErrMalformedInstruction возвращается, если запись не удалось разобрать.
var ErrMalformedInstruction = errors.New("malformed load instruction")

// Сумма записывается обычной десятичной дробью без экспоненты.
var amountPattern = regexp.MustCompile(`^\d{1,18}(\.\d{1,8})?$`)

type rawInstruction struct {
	ID         json.RawMessage `json:"id"`
	CustomerID json.RawMessage `json:"customer_id"`
	LoadAmount json.RawMessage `json:"load_amount"`
	Time       *string         `json:"time"`
}

// Parse разбирает одну JSON-запись о пополнении.
func Parse(raw []byte) (model.Load, error) {
	var in rawInstruction
	if err := json.Unmarshal(raw, &in); err != nil {
		return model.Load{}, fmt.Errorf("%w: %v", ErrMalformedInstruction, err)
	}

	id, err := identifier(in.ID)
	if err != nil {
		return model.Load{}, fmt.Errorf("%w: id: %v", ErrMalformedInstruction, err)
	}

	customerID, err := identifier(in.CustomerID)
	if err != nil {
		return model.Load{}, fmt.Errorf("%w: customer_id: %v", ErrMalformedInstruction, err)
	}

	amount, err := ParseAmount(in.LoadAmount)
	if err != nil {
		return model.Load{}, fmt.Errorf("%w: load_amount: %v", ErrMalformedInstruction, err)
	}

	if in.Time == nil {
		return model.Load{}, fmt.Errorf("%w: time: missing", ErrMalformedInstruction)
	}
	at, err := time.Parse(time.RFC3339, *in.Time)
	if err != nil {
		return model.Load{}, fmt.Errorf("%w: time: %v", ErrMalformedInstruction, err)
	}

	return model.Load{
		ID:         id,
		CustomerID: customerID,
		Amount:     amount,
		Time:       at.UTC(),
	}, nil
}

// identifier принимает строку или целое число.
func identifier(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errors.New("missing")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", errors.New("empty")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("unsupported value %s", raw)
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("not an integer: %s", n)
	}
	return n.String(), nil
}

// ParseAmount разбирает сумму пополнения: строку вида "$123.45" или JSON-число.
// Допускается только запись без экспоненты, не более 8 знаков после точки.
// Отрицательные суммы не допускаются.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if isNull(raw) {
		return decimal.Zero, errors.New("missing")
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return decimal.Zero, fmt.Errorf("unsupported value %s", raw)
		}
		text = n.String()
	}

	text = strings.TrimPrefix(strings.TrimSpace(text), "$")
	if text == "" {
		return decimal.Zero, errors.New("empty")
	}

	if strings.HasPrefix(text, "-") {
		return decimal.Zero, fmt.Errorf("negative amount %s", text)
	}
	if !amountPattern.MatchString(text) {
		return decimal.Zero, fmt.Errorf("not a plain decimal: %.32q", text)
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %.32q", text)
	}
	return amount, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
