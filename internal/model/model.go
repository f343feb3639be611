// Package model содержит доменные сущности лимитера пополнений.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Load описывает одну попытку пополнения счёта клиента.
type Load struct {
	ID         string
	CustomerID string
	Amount     decimal.Decimal
	Time       time.Time
}

// Reason описывает причину принятого по пополнению решения.
type Reason string

const (
	ReasonAccepted     Reason = "accepted"
	ReasonDuplicate    Reason = "duplicate"
	ReasonDailyAmount  Reason = "daily_amount"
	ReasonWeeklyAmount Reason = "weekly_amount"
	ReasonDailyCount   Reason = "daily_count"
)

// Decision содержит результат проверки пополнения.
type Decision struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Accepted   bool   `json:"accepted"`
	Reason     Reason `json:"-"`
}

// JournalEntry описывает запись журнала решений одного запуска.
type JournalEntry struct {
	RunID    uuid.UUID
	Seq      int64
	Load     Load
	Decision Decision
}
