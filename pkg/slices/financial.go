package slices

import (
	"time"

	"github.com/vango-dev/campusdesk/pkg/store"
)

// Financial action types.
const (
	FinancialPaymentRecorded = "financial/paymentRecorded"
	FinancialPaymentRemoved  = "financial/paymentRemoved"
	FinancialLoaded          = "financial/loaded"
)

// Payment is a tuition payment. Amounts are in cents.
type Payment struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	AmountCents int64     `json:"amountCents"`
	Method      string    `json:"method,omitempty"`
	Note        string    `json:"note,omitempty"`
	PaidAt      time.Time `json:"paidAt"`
}

// FinancialState is the financial slice. Balance is always the sum of
// payment amounts.
type FinancialState struct {
	Payments []Payment `json:"payments"`
	Balance  int64     `json:"balance"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// PaymentsFor returns the payments of one student.
func (s FinancialState) PaymentsFor(studentID string) []Payment {
	var out []Payment
	for _, p := range s.Payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out
}

// PaymentRecorded builds a FinancialPaymentRecorded action.
func PaymentRecorded(p Payment) store.Action {
	return store.Action{Type: FinancialPaymentRecorded, Payload: p}
}

// PaymentRemoved builds a FinancialPaymentRemoved action.
func PaymentRemoved(id string) store.Action {
	return store.Action{Type: FinancialPaymentRemoved, Payload: id}
}

// PaymentsLoaded builds a FinancialLoaded action.
func PaymentsLoaded(payments []Payment) store.Action {
	return store.Action{Type: FinancialLoaded, Payload: payments}
}

func initialFinancial() FinancialState {
	return FinancialState{Payments: []Payment{}, Status: StatusIdle}
}

func balance(payments []Payment) int64 {
	var sum int64
	for _, p := range payments {
		sum += p.AmountCents
	}
	return sum
}

func reduceFinancial(s FinancialState, a store.Action) FinancialState {
	switch a.Type {
	case FinancialLoaded:
		payments, err := DecodePayload[[]Payment](a.Payload)
		if err != nil {
			s.Status, s.Error = StatusFailed, payloadError(a, err)
			return s
		}
		payments = append([]Payment{}, payments...)
		return FinancialState{Payments: payments, Balance: balance(payments), Status: StatusSucceeded}

	case FinancialPaymentRecorded:
		p, err := DecodePayload[Payment](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		for _, existing := range s.Payments {
			if existing.ID == p.ID {
				s.Error = a.Type + ": duplicate payment " + p.ID
				return s
			}
		}
		payments := make([]Payment, 0, len(s.Payments)+1)
		payments = append(payments, s.Payments...)
		payments = append(payments, p)
		s.Payments, s.Balance, s.Error = payments, balance(payments), ""
		return s

	case FinancialPaymentRemoved:
		id, err := DecodePayload[string](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		payments := make([]Payment, 0, len(s.Payments))
		for _, p := range s.Payments {
			if p.ID != id {
				payments = append(payments, p)
			}
		}
		s.Payments, s.Balance, s.Error = payments, balance(payments), ""
		return s

	case AuthLogout:
		return initialFinancial()
	}
	return s
}
