package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	notif "storefront_backend/internals/features/notifications/service"
	orderModel "storefront_backend/internals/features/orders/model"
	"storefront_backend/internals/features/payments/model"
)

// fakeStore keeps orders in memory and applies patches with the same guard the
// Strapi accessor uses.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]orderModel.Order
	finds   int
	updates int
	findErr error
	// rejectWrites makes every write come back as a store rejection.
	rejectWrites bool
}

func newFakeStore(orders ...orderModel.Order) *fakeStore {
	s := &fakeStore{orders: map[string]orderModel.Order{}}
	for _, o := range orders {
		s.orders[o.OrderNumber] = o
	}
	return s
}

func (s *fakeStore) FindByOrderNumber(_ context.Context, n string) (orderModel.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return orderModel.Order{}, false, s.findErr
	}
	o, ok := s.orders[n]
	return o, ok, nil
}

func (s *fakeStore) ApplyPatch(_ context.Context, ref orderModel.OrderRef, p orderModel.OrderPatch) (orderModel.WriteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectWrites {
		return orderModel.WriteRejected, nil
	}
	o, ok := s.orders[ref.Number()]
	if !ok || !p.Allows(o) || !p.Changes(o) {
		return orderModel.WriteSkipped, nil
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentID != nil {
		o.PaymentID = p.PaymentID
	}
	if p.PaidAt != nil {
		o.PaidAt = p.PaidAt
	}
	s.orders[ref.Number()] = o
	s.updates++
	return orderModel.WriteApplied, nil
}

func (s *fakeStore) order(n string) orderModel.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[n]
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Provider() model.GatewayProvider { return model.GatewayProviderYooKassa }

func (m *mockGateway) ValidPaymentID(id string) bool { return id != "" }

func (m *mockGateway) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockGateway) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notif.Notice) {
	m.Called(ctx, n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notif.PaymentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev notif.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// memJournal mirrors GormJournal's replay rules.
type memJournal struct {
	mu     sync.Mutex
	byKey  map[string]uuid.UUID
	status map[uuid.UUID]model.GatewayEventStatus
	causes map[uuid.UUID]string
}

func newMemJournal() *memJournal {
	return &memJournal{
		byKey:  map[string]uuid.UUID{},
		status: map[uuid.UUID]model.GatewayEventStatus{},
		causes: map[uuid.UUID]string{},
	}
}

func (j *memJournal) Begin(_ context.Context, n model.Notification, _ string) (uuid.UUID, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := string(n.Provider) + "|" + string(n.Event) + "|" + n.Payment.ID
	if id, ok := j.byKey[key]; ok {
		st := j.status[id]
		return id, st == model.GatewayEventStatusProcessed || st == model.GatewayEventStatusIgnored, nil
	}
	id := uuid.New()
	j.byKey[key] = id
	j.status[id] = model.GatewayEventStatusReceived
	return id, false, nil
}

func (j *memJournal) Finish(_ context.Context, id uuid.UUID, st model.GatewayEventStatus, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status[id] = st
	if cause != nil {
		j.causes[id] = cause.Error()
	}
	return nil
}

// entry returns the recorded status and error text for a notification.
func (j *memJournal) entry(n model.Notification) (model.GatewayEventStatus, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.byKey[string(n.Provider)+"|"+string(n.Event)+"|"+n.Payment.ID]
	return j.status[id], j.causes[id]
}

// blockingNotifier holds every Notify call until release is closed.
type blockingNotifier struct {
	started     chan struct{}
	release     chan struct{}
	once        sync.Once
	mu          sync.Mutex
	calls       int
	hadDeadline bool
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingNotifier) Notify(ctx context.Context, _ notif.Notice) {
	_, deadline := ctx.Deadline()
	b.mu.Lock()
	b.calls++
	b.hadDeadline = deadline
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
}

func (b *blockingNotifier) Release() { b.once.Do(func() { close(b.release) }) }

func (b *blockingNotifier) snapshot() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.hadDeadline
}
