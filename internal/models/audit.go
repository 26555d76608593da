package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types
const (
	ActorUser     = "user"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
	ActorTelegram = "telegram"
)

// Audit actions for payment lifecycle
const (
	AuditInvoiceCreated  = "invoice_created"
	AuditInvoiceRepriced = "invoice_repriced"
	AuditPaymentPaid     = "payment_paid"
	AuditPaymentFailed   = "payment_failed"
	AuditLedgerRepaired  = "ledger_repaired"
	AuditRefundRequested = "refund_requested"
	AuditRefundFinished  = "refund_finished"
	AuditBalanceAdjusted = "balance_adjusted"
)

const (
	EntityPayment     = "payment"
	EntityLedgerEntry = "wallet_ledger"
)

type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"`
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Meta        any        `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
