package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/events"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/google/uuid"
)

func paidPayment(t *testing.T, f *settlementFixture, tgID, rub int64) *models.Payment {
	t.Helper()
	inv := f.invoice(t, tgID, rub)
	stars := StarsForRub(rub, testConfig().XTRPerRub)
	out, err := f.settle.SettleSuccessfulPayment(context.Background(), SuccessfulPayment{
		Payload: inv.Payload, TelegramUserID: tgID, ChargeID: "ch_" + inv.Payload, TotalStars: stars,
	})
	if err != nil || out != OutcomeCredited {
		t.Fatalf("settle: %s %v", out, err)
	}
	return f.store.payment(inv.Payload)
}

func TestRefund_OK(t *testing.T) {
	f := newSettlementFixture()
	user := f.store.addUser(1)
	p := paidPayment(t, f, 1, 100)
	svc := NewRefundService(f.store, memPayments{f.store}, f.gw, f.pub, testLog)

	rf, err := svc.Refund(context.Background(), uuid.New(), p.ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if rf.Status != models.RefundStatusOK || rf.ProcessedAt == nil {
		t.Errorf("unexpected refund %+v", rf)
	}
	if len(f.gw.refunds) != 1 || f.gw.refunds[0] != *p.TelegramChargeID {
		t.Errorf("gateway refunds = %v", f.gw.refunds)
	}
	if got := f.store.payment(p.Payload); got.Status != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s", got.Status)
	}
	if n := len(f.store.ledgerFor(p.ID, models.LedgerTypeRefund)); n != 1 {
		t.Errorf("expected 1 refund entry, got %d", n)
	}
	balance, _ := f.ledger.Balance(context.Background(), user.ID)
	if !balance.IsZero() {
		t.Errorf("balance = %s, want 0", balance)
	}
	types := f.pub.types()
	if types[len(types)-1] != events.EventPaymentRefunded {
		t.Errorf("events = %v", types)
	}

	if _, err := svc.Refund(context.Background(), uuid.New(), p.ID); KindOf(err) != KindConflict {
		t.Errorf("second refund: expected conflict, got %v", err)
	}
}

func TestRefund_GatewayFailure(t *testing.T) {
	f := newSettlementFixture()
	user := f.store.addUser(1)
	p := paidPayment(t, f, 1, 100)
	f.gw.refundErr = errors.New("CHARGE_ALREADY_REFUNDED")
	svc := NewRefundService(f.store, memPayments{f.store}, f.gw, f.pub, testLog)

	rf, err := svc.Refund(context.Background(), uuid.New(), p.ID)
	if KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if rf == nil || rf.Status != models.RefundStatusFailed || rf.ErrorMessage == nil {
		t.Fatalf("unexpected refund %+v", rf)
	}
	if got := f.store.payment(p.Payload); got.Status != models.PaymentStatusPaid {
		t.Errorf("payment must stay PAID, got %s", got.Status)
	}
	balance, _ := f.ledger.Balance(context.Background(), user.ID)
	if balance.IntPart() != 100 {
		t.Errorf("balance = %s, want 100", balance)
	}

	// после неудачи можно попробовать снова
	f.gw.refundErr = nil
	if _, err := svc.Refund(context.Background(), uuid.New(), p.ID); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestRefund_Rejects(t *testing.T) {
	f := newSettlementFixture()
	f.store.addUser(1)
	svc := NewRefundService(f.store, memPayments{f.store}, f.gw, f.pub, testLog)

	if _, err := svc.Refund(context.Background(), uuid.New(), uuid.New()); KindOf(err) != KindNotFound {
		t.Errorf("unknown payment: %v", err)
	}

	inv := f.invoice(t, 1, 100)
	p := f.store.payment(inv.Payload)
	if _, err := svc.Refund(context.Background(), uuid.New(), p.ID); KindOf(err) != KindConflict {
		t.Errorf("pending payment: %v", err)
	}
	if len(f.gw.refunds) != 0 || len(f.store.refunds) != 0 {
		t.Error("rejected refunds must not reach telegram or storage")
	}
}

func TestRefund_FinishFailureIsResumed(t *testing.T) {
	f := newSettlementFixture()
	user := f.store.addUser(1)
	p := paidPayment(t, f, 1, 100)
	svc := NewRefundService(f.store, memPayments{f.store}, f.gw, f.pub, testLog)

	// Telegram вернул звёзды, а вторая транзакция упала
	f.gw.onRefund = func() { f.store.failTx(errors.New("connection reset")) }
	if _, err := svc.Refund(context.Background(), uuid.New(), p.ID); err == nil || KindOf(err) == KindUpstream {
		t.Fatalf("expected storage error, got %v", err)
	}
	f.gw.onRefund = nil

	rfs := f.store.refundsFor(p.ID)
	if len(rfs) != 1 || rfs[0].Status != models.RefundStatusRequested {
		t.Fatalf("refund must stay REQUESTED: %+v", rfs)
	}
	if got := f.store.payment(p.Payload); got.Status != models.PaymentStatusPaid {
		t.Fatalf("payment status = %s", got.Status)
	}
	if _, err := svc.Refund(context.Background(), uuid.New(), p.ID); KindOf(err) != KindConflict {
		t.Errorf("open refund must block a new one, got %v", err)
	}

	// свежие не трогаем
	if n, err := svc.ResumeStale(context.Background(), time.Hour); err != nil || n != 0 {
		t.Fatalf("fresh refund resumed: n=%d err=%v", n, err)
	}

	n, err := svc.ResumeStale(context.Background(), 0)
	if err != nil || n != 1 {
		t.Fatalf("ResumeStale: n=%d err=%v", n, err)
	}
	rfs = f.store.refundsFor(p.ID)
	if len(rfs) != 1 || rfs[0].Status != models.RefundStatusOK || rfs[0].ProcessedAt == nil {
		t.Errorf("refund after resume: %+v", rfs)
	}
	if got := f.store.payment(p.Payload); got.Status != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s, want REFUNDED", got.Status)
	}
	if got := len(f.store.ledgerFor(p.ID, models.LedgerTypeRefund)); got != 1 {
		t.Errorf("expected 1 refund entry, got %d", got)
	}
	balance, _ := f.ledger.Balance(context.Background(), user.ID)
	if !balance.IsZero() {
		t.Errorf("balance = %s, want 0", balance)
	}

	// второй проход ничего не находит
	if n, err := svc.ResumeStale(context.Background(), 0); err != nil || n != 0 {
		t.Errorf("second pass: n=%d err=%v", n, err)
	}
}

func TestRefund_CompletesAfterRequestCancel(t *testing.T) {
	f := newSettlementFixture()
	f.store.addUser(1)
	p := paidPayment(t, f, 1, 100)
	svc := NewRefundService(f.store, memPayments{f.store}, f.gw, f.pub, testLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gw.onRefund = cancel

	rf, err := svc.Refund(ctx, uuid.New(), p.ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if rf.Status != models.RefundStatusOK {
		t.Errorf("refund status = %s", rf.Status)
	}
	if got := f.store.payment(p.Payload); got.Status != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s, want REFUNDED", got.Status)
	}
}
