package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/events"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testLog = zap.NewNop()

// memStore — in-memory Postgres: users, payments, ledger, refunds, audit.
// InTx держит мьютекс на всё время транзакции и откатывает состояние при ошибке.
type memStore struct {
	mu sync.Mutex
	// users под отдельным локом: Refund читает пользователя внутри InTx
	umu      sync.Mutex
	users    map[uuid.UUID]*models.User
	payments map[uuid.UUID]*models.Payment
	ledger   []models.LedgerEntry
	refunds  map[uuid.UUID]*models.Refund
	audit    []models.AuditLog
	vpn      []models.VpnConfig
	// failNextTx, если задан, возвращается следующим InTx вместо коммита
	failNextTx error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[uuid.UUID]*models.User{},
		payments: map[uuid.UUID]*models.Payment{},
		refunds:  map[uuid.UUID]*models.Refund{},
	}
}

func (m *memStore) addUser(tgID int64) *models.User {
	m.umu.Lock()
	defer m.umu.Unlock()
	u := &models.User{ID: uuid.New(), TelegramUserID: tgID, CreatedAt: time.Now(), LastActiveAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *memStore) ledgerFor(paymentID uuid.UUID, entryType string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.ledger {
		if e.PaymentID != nil && *e.PaymentID == paymentID && e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) payment(payload string) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Payload == payload {
			cp := *p
			return &cp
		}
	}
	return nil
}

// users

func (m *memStore) GetByTelegramID(_ context.Context, tgID int64) (*models.User, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	for _, u := range m.users {
		if u.TelegramUserID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpsertByTelegramID(_ context.Context, tgID int64, username, firstName, lastName *string) (*models.User, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	for _, u := range m.users {
		if u.TelegramUserID == tgID {
			if username != nil {
				u.Username = username
			}
			cp := *u
			return &cp, nil
		}
	}
	u := &models.User{ID: uuid.New(), TelegramUserID: tgID, Username: username, FirstName: firstName, LastName: lastName}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateLastActive(context.Context, uuid.UUID) error { return nil }

// payments

type memPayments struct{ *memStore }

func (m memPayments) InTx(ctx context.Context, fn func(tx repositories.PaymentTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextTx; err != nil {
		m.failNextTx = nil
		return err
	}

	payments := make(map[uuid.UUID]models.Payment, len(m.payments))
	for id, p := range m.payments {
		payments[id] = *p
	}
	refunds := make(map[uuid.UUID]models.Refund, len(m.refunds))
	for id, r := range m.refunds {
		refunds[id] = *r
	}
	ledgerLen, auditLen := len(m.ledger), len(m.audit)

	if err := fn(&memTx{m.memStore}); err != nil {
		m.payments = map[uuid.UUID]*models.Payment{}
		for id, p := range payments {
			p := p
			m.payments[id] = &p
		}
		m.refunds = map[uuid.UUID]*models.Refund{}
		for id, r := range refunds {
			r := r
			m.refunds[id] = &r
		}
		m.ledger, m.audit = m.ledger[:ledgerLen], m.audit[:auditLen]
		return err
	}
	return nil
}

func (m memPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m memPayments) GetByPayload(_ context.Context, payload string) (*models.Payment, error) {
	if p := m.payment(payload); p != nil {
		return p, nil
	}
	return nil, repositories.ErrNotFound
}

func (m memPayments) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m memPayments) ListPaidWithoutTopup(_ context.Context, _ int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range m.payments {
		if p.Status == models.PaymentStatusPaid && !m.hasTopup(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m memPayments) ListStaleRefunds(_ context.Context, before time.Time, _ int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, r := range m.refunds {
		if r.Status == models.RefundStatusRequested && !r.CreatedAt.After(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) failTx(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextTx = err
}

func (m *memStore) refundsFor(paymentID uuid.UUID) []models.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Refund
	for _, r := range m.refunds {
		if r.PaymentID == paymentID {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) hasTopup(paymentID uuid.UUID) bool {
	for _, e := range m.ledger {
		if e.PaymentID != nil && *e.PaymentID == paymentID && e.EntryType == models.LedgerTypeTopup {
			return true
		}
	}
	return false
}

// memTx runs with memStore.mu held.
type memTx struct{ *memStore }

func (t *memTx) LockByPayload(_ context.Context, payload string) (*models.Payment, error) {
	for _, p := range t.payments {
		if p.Payload == payload {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (t *memTx) LockByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := t.payments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) Insert(_ context.Context, p *models.Payment) error {
	for _, existing := range t.payments {
		if existing.Payload == p.Payload {
			return errors.New("duplicate payload")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	t.payments[p.ID] = &cp
	return nil
}

func (t *memTx) guard(id uuid.UUID, status string) (*models.Payment, error) {
	p, ok := t.payments[id]
	if !ok || p.Status != status {
		return nil, repositories.ErrStaleState
	}
	return p, nil
}

func (t *memTx) UpdateAmounts(_ context.Context, id uuid.UUID, rub decimal.Decimal, stars int) error {
	p, err := t.guard(id, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	p.RubAmount, p.StarsAmount = rub, stars
	return nil
}

// chargeTaken повторяет partial unique index ux_payments_charge_id.
func (t *memTx) chargeTaken(id uuid.UUID, chargeID string) bool {
	if chargeID == "" {
		return false
	}
	for _, p := range t.payments {
		if p.ID != id && p.TelegramChargeID != nil && *p.TelegramChargeID == chargeID {
			return true
		}
	}
	return false
}

func (t *memTx) MarkPaid(_ context.Context, id uuid.UUID, chargeID string, paidAt time.Time) error {
	p, err := t.guard(id, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if t.chargeTaken(id, chargeID) {
		return repositories.ErrDuplicateChargeID
	}
	p.Status = models.PaymentStatusPaid
	p.TelegramChargeID = &chargeID
	p.PaidAt = &paidAt
	p.FailedReason, p.CanceledAt = nil, nil
	return nil
}

func (t *memTx) MarkFailed(_ context.Context, id uuid.UUID, chargeID, reason string) error {
	p, err := t.guard(id, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if t.chargeTaken(id, chargeID) {
		return repositories.ErrDuplicateChargeID
	}
	p.Status = models.PaymentStatusFailed
	p.TelegramChargeID = &chargeID
	p.FailedReason = &reason
	return nil
}

func (t *memTx) MarkRefunded(_ context.Context, id uuid.UUID) error {
	p, err := t.guard(id, models.PaymentStatusPaid)
	if err != nil {
		return err
	}
	p.Status = models.PaymentStatusRefunded
	return nil
}

func (t *memTx) TopupExists(_ context.Context, paymentID uuid.UUID) (bool, error) {
	return t.hasTopup(paymentID), nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	if e.EntryType == models.LedgerTypeTopup && e.PaymentID != nil && t.hasTopup(*e.PaymentID) {
		return errors.New("duplicate topup")
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	t.ledger = append(t.ledger, *e)
	return nil
}

func (t *memTx) OpenRefundExists(_ context.Context, paymentID uuid.UUID) (bool, error) {
	for _, r := range t.refunds {
		if r.PaymentID == paymentID && r.Status != models.RefundStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRefund(_ context.Context, r *models.Refund) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	cp := *r
	t.refunds[r.ID] = &cp
	return nil
}

func (t *memTx) LockRefund(_ context.Context, id uuid.UUID) (*models.Refund, error) {
	r, ok := t.refunds[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) FinishRefund(_ context.Context, id uuid.UUID, status string, errMsg *string, at time.Time) error {
	r, ok := t.refunds[id]
	if !ok || r.Status != models.RefundStatusRequested {
		return repositories.ErrStaleState
	}
	r.Status, r.ErrorMessage, r.ProcessedAt = status, errMsg, &at
	return nil
}

func (t *memTx) Audit(_ context.Context, entry models.AuditLog) error {
	t.audit = append(t.audit, entry)
	return nil
}

// ledger

type memLedger struct{ *memStore }

func (m memLedger) Append(_ context.Context, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.ledger = append(m.ledger, *e)
	return nil
}

func (m memLedger) Balance(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, e := range m.ledger {
		if e.UserID == userID {
			sum = sum.Add(e.AmountRub)
		}
	}
	return sum, nil
}

func (m memLedger) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// audit

type memAudit struct{ *memStore }

func (m memAudit) Log(_ context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m memAudit) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, _, _ int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, l := range m.audit {
		if l.EntityType == entityType && l.EntityID != nil && *l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out, nil
}

// vpn

type memVpn struct{ *memStore }

func (m memVpn) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]models.VpnConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VpnConfig
	for _, c := range m.vpn {
		if c.UserID == userID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

// gateway

type fakeGateway struct {
	mu          sync.Mutex
	linkErr     error
	refundErr   error
	answerErr   error
	links       []string
	answers     map[string]bool
	refunds     []string
	onRefund    func()
	lastStars   int
	lastDescr   string
	lastPayload string
}

func (g *fakeGateway) CreateStarsInvoiceLink(_ context.Context, _, description, payload, _ string, stars int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.linkErr != nil {
		return "", g.linkErr
	}
	g.lastStars, g.lastDescr, g.lastPayload = stars, description, payload
	link := "https://t.me/$" + payload
	g.links = append(g.links, link)
	return link, nil
}

func (g *fakeGateway) AnswerPreCheckout(_ context.Context, queryID string, ok bool, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answerErr != nil {
		return g.answerErr
	}
	if g.answers == nil {
		g.answers = map[string]bool{}
	}
	g.answers[queryID] = ok
	return nil
}

func (g *fakeGateway) RefundStarPayment(ctx context.Context, _ int64, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, chargeID)
	if g.onRefund != nil {
		g.onRefund()
	}
	return nil
}

// publisher

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
