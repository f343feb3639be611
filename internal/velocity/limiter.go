// Package velocity реализует проверку пополнений по лимитам суммы и количества
// за календарный день и неделю.
package velocity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/load-velocity/internal/model"
)

// ErrInvalidLimits возвращается при некорректных значениях лимитов.
var ErrInvalidLimits = errors.New("invalid velocity limits")

// Limits содержит лимиты, применяемые к каждому клиенту.
type Limits struct {
	DailyAmount  decimal.Decimal
	WeeklyAmount decimal.Decimal
	DailyCount   int
	WeekStart    time.Weekday
}

// DefaultLimits возвращает лимиты по умолчанию: 5000 в день, 20000 в неделю,
// не более трёх пополнений в день, неделя начинается с понедельника.
func DefaultLimits() Limits {
	return Limits{
		DailyAmount:  decimal.NewFromInt(5000),
		WeeklyAmount: decimal.NewFromInt(20000),
		DailyCount:   3,
		WeekStart:    time.Monday,
	}
}

// Validate проверяет корректность лимитов.
func (l Limits) Validate() error {
	if l.DailyAmount.IsNegative() {
		return fmt.Errorf("%w: daily amount %s", ErrInvalidLimits, l.DailyAmount)
	}
	if l.WeeklyAmount.IsNegative() {
		return fmt.Errorf("%w: weekly amount %s", ErrInvalidLimits, l.WeeklyAmount)
	}
	if l.DailyCount < 0 {
		return fmt.Errorf("%w: daily count %d", ErrInvalidLimits, l.DailyCount)
	}
	if l.WeekStart < time.Sunday || l.WeekStart > time.Saturday {
		return fmt.Errorf("%w: week start %d", ErrInvalidLimits, int(l.WeekStart))
	}
	return nil
}

// CustomerState содержит копию накопленного состояния клиента.
type CustomerState struct {
	Day         time.Time
	Week        time.Time
	DailyTotal  decimal.Decimal
	DailyCount  int
	WeeklyTotal decimal.Decimal
	SeenIDs     int
}

type customerState struct {
	day         time.Time
	week        time.Time
	dailyTotal  decimal.Decimal
	dailyCount  int
	weeklyTotal decimal.Decimal
	seen        map[string]struct{}
}

// Limiter принимает решения по пополнениям и единолично владеет состоянием клиентов.
// Не предназначен для конкурентного использования.
type Limiter struct {
	limits    Limits
	customers map[string]*customerState
}

// NewLimiter создаёт лимитер с пустым состоянием клиентов.
func NewLimiter(limits Limits) (*Limiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		limits:    limits,
		customers: make(map[string]*customerState),
	}, nil
}

// Limits возвращает лимиты, с которыми создан лимитер.
func (l *Limiter) Limits() Limits {
	return l.limits
}

// Evaluate проверяет пополнение и возвращает решение по нему.
// Пополнения должны подаваться в порядке поступления.
func (l *Limiter) Evaluate(load model.Load) model.Decision {
	st := l.customer(load.CustomerID)

	decision := model.Decision{
		ID:         load.ID,
		CustomerID: load.CustomerID,
	}

	if _, ok := st.seen[load.ID]; ok {
		decision.Reason = model.ReasonDuplicate
		return decision
	}
	st.seen[load.ID] = struct{}{}

	w := l.windowFor(st, load.Time)
	dailyTotal := w.dailyTotal.Add(load.Amount)
	weeklyTotal := w.weeklyTotal.Add(load.Amount)

	switch {
	case dailyTotal.GreaterThan(l.limits.DailyAmount):
		decision.Reason = model.ReasonDailyAmount
	case weeklyTotal.GreaterThan(l.limits.WeeklyAmount):
		decision.Reason = model.ReasonWeeklyAmount
	case w.dailyCount+1 > l.limits.DailyCount:
		decision.Reason = model.ReasonDailyCount
	default:
		st.day = w.day
		st.week = w.week
		st.dailyTotal = dailyTotal
		st.dailyCount = w.dailyCount + 1
		st.weeklyTotal = weeklyTotal
		decision.Accepted = true
		decision.Reason = model.ReasonAccepted
	}

	return decision
}

// State возвращает копию состояния клиента.
func (l *Limiter) State(customerID string) (CustomerState, bool) {
	st, ok := l.customers[customerID]
	if !ok {
		return CustomerState{}, false
	}
	return CustomerState{
		Day:         st.day,
		Week:        st.week,
		DailyTotal:  st.dailyTotal,
		DailyCount:  st.dailyCount,
		WeeklyTotal: st.weeklyTotal,
		SeenIDs:     len(st.seen),
	}, true
}

// Customers возвращает количество известных лимитеру клиентов.
func (l *Limiter) Customers() int {
	return len(l.customers)
}

func (l *Limiter) customer(id string) *customerState {
	st, ok := l.customers[id]
	if !ok {
		st = &customerState{seen: make(map[string]struct{})}
		l.customers[id] = st
	}
	return st
}

type window struct {
	day         time.Time
	week        time.Time
	dailyTotal  decimal.Decimal
	dailyCount  int
	weeklyTotal decimal.Decimal
}

// windowFor возвращает итоги окон, в которые попадает t. День и неделя
// сбрасываются независимо; состояние клиента при этом не меняется.
func (l *Limiter) windowFor(st *customerState, t time.Time) window {
	w := window{
		day:         DayStart(t),
		week:        WeekStart(t, l.limits.WeekStart),
		dailyTotal:  st.dailyTotal,
		dailyCount:  st.dailyCount,
		weeklyTotal: st.weeklyTotal,
	}
	if !w.day.Equal(st.day) {
		w.dailyTotal = decimal.Zero
		w.dailyCount = 0
	}
	if !w.week.Equal(st.week) {
		w.weeklyTotal = decimal.Zero
	}
	return w
}

// DayStart возвращает начало календарного дня (UTC), которому принадлежит t.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart возвращает начало недели (UTC), которой принадлежит t.
func WeekStart(t time.Time, first time.Weekday) time.Time {
	day := DayStart(t)
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
