package models

import "time"

type TransactionType string

const (
	TxEarned  TransactionType = "EARNED"
	TxSpent   TransactionType = "SPENT"
	TxBonus   TransactionType = "BONUS"
	TxPenalty TransactionType = "PENALTY"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxEarned, TxSpent, TxBonus, TxPenalty:
		return true
	}
	return false
}

// FlarikiTransaction строка леджера; после вставки не меняется.
type FlarikiTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	Reason      string          `json:"reason"`
	TaskID      *string         `json:"taskId"`
	ReportID    *string         `json:"reportId"`
	PurchaseID  *string         `json:"purchaseId"`
	CreatedByID *string         `json:"createdById"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// LedgerEntry is a balance mutation request.
type LedgerEntry struct {
	UserID      string
	Type        TransactionType
	Amount      int64
	Reason      string
	TaskID      *string
	ReportID    *string
	PurchaseID  *string
	CreatedByID *string
}

type TransactionFilter struct {
	UserID *string
	Type   *TransactionType
	Page
}

type LedgerTypeStat struct {
	Type  TransactionType `json:"type"`
	Sum   int64           `json:"sum"`
	Count int64           `json:"count"`
}

type LedgerStats struct {
	ByType       []LedgerTypeStat `json:"byType"`
	TotalBalance int64            `json:"totalBalance"`
	UsersCount   int64            `json:"usersCount"`
}

// BalanceMismatch is a user whose stored balance disagrees with the ledger.
type BalanceMismatch struct {
	UserID    string `json:"userId"`
	Balance   int64  `json:"balance"`
	LedgerSum int64  `json:"ledgerSum"`
}
