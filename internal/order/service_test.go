package order_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/customer"
	customerdb "paintball-ticketing/internal/customer/db"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/database/dbtest"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/order"
	"paintball-ticketing/internal/order/db"
	"paintball-ticketing/internal/payment"
	"paintball-ticketing/internal/retry"
	"paintball-ticketing/internal/storage"
	ticketdb "paintball-ticketing/internal/tickets/db"
	"paintball-ticketing/internal/tickets/qr"
	tickets "paintball-ticketing/internal/tickets/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testKey = "k9T#mQ2v!Lx7Wz4pR8sY1nB6cF3hJ0dG"

type staticSettings struct{ s models.TicketSettings }

func (s staticSettings) Current() models.TicketSettings { return s.s }

type recordingQueue struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (q *recordingQueue) Enqueue(_ context.Context, event, _ string, _ any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return q.err
}

type failingCache struct{ calls int }

func (c *failingCache) DeletePattern(context.Context, string) error {
	c.calls++
	return errors.New("redis: connection refused")
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "paystack" }

func (m *mockGateway) InitializeCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	args := m.Called(ctx, req)
	c, _ := args.Get(0).(*payment.Charge)
	return c, args.Error(1)
}

func (m *mockGateway) VerifyCharge(ctx context.Context, reference string) (*payment.Verification, error) {
	args := m.Called(ctx, reference)
	v, _ := args.Get(0).(*payment.Verification)
	return v, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, header http.Header) (*payment.WebhookEvent, error) {
	args := m.Called(payload, header)
	e, _ := args.Get(0).(*payment.WebhookEvent)
	return e, args.Error(1)
}

type fixture struct {
	svc       *order.OrderService
	customers *customer.Service
	tickets   *tickets.TicketService
	audit     *audit.Recorder
	queue     *recordingQueue
	cache     *failingCache
	gateway   *mockGateway
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bunDB := dbtest.New(t)
	tx := database.NewTxManager(bunDB)
	log := logger.NewNop()
	gen, err := qr.NewQRGenerator(testKey)
	require.NoError(t, err)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		audit:   audit.NewRecorder(bunDB),
		queue:   &recordingQueue{},
		cache:   &failingCache{},
		gateway: &mockGateway{},
		clock:   time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}
	f.customers = customer.NewService(&customerdb.DB{Bun: bunDB}, f.audit, log)
	f.tickets = tickets.NewTicketService(tickets.Dependencies{
		DB:     &ticketdb.DB{Bun: bunDB},
		Tx:     tx,
		QR:     gen,
		Store:  store,
		Logger: log,
	})
	f.tickets.Now = func() time.Time { return f.clock }

	f.svc = order.NewOrderService(order.Dependencies{
		DB:        &db.DB{Bun: bunDB},
		Tx:        tx,
		Customers: f.customers,
		Tickets:   f.tickets,
		Settings: staticSettings{models.TicketSettings{
			MaxScanCount:   2,
			ScanWindowDays: 14,
			ValidityDays:   30,
			BasePrice:      decimal.RequireFromString("25.00"),
		}},
		Queue:    f.queue,
		Cache:    f.cache,
		Audit:    f.audit,
		Gateway:  f.gateway,
		Currency: "NGN",
		Logger:   log,
	})
	f.svc.Now = func() time.Time { return f.clock }
	f.svc.Retry = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}
	return f
}

func (f *fixture) customer(t *testing.T) *models.Customer {
	t.Helper()
	c, err := f.customers.Create(context.Background(), customer.CreateRequest{Name: "Ada", Email: "ada@example.com"}, "staff-1")
	require.NoError(t, err)
	return c
}

func (f *fixture) pendingOrder(t *testing.T, quantity int) *models.Order {
	t.Helper()
	c := f.customer(t)
	o, err := f.svc.CreateOrder(context.Background(), order.CreateOrderRequest{
		CustomerID:   c.ID,
		Quantity:     quantity,
		Amount:       decimal.RequireFromString("75.00"),
		SessionLabel: "Saturday",
	}, "staff-1")
	require.NoError(t, err)
	return o
}

func TestCreateOrderIssuesPendingTickets(t *testing.T) {
	f := newFixture(t)
	o := f.pendingOrder(t, 3)

	assert.Equal(t, models.OrderPending, o.Status)
	assert.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-Z]{6}$`, o.OrderNumber)
	require.Len(t, o.Tickets, 3)
	for _, tk := range o.Tickets {
		assert.Equal(t, models.TicketPending, tk.Status)
		assert.Equal(t, o.ID, tk.OrderID)
	}
	assert.Equal(t, []string{models.EventOrderCreated}, f.queue.events)
	assert.Equal(t, 1, f.cache.calls, "analytics invalidation is attempted even though it fails")

	trail, err := f.audit.List(context.Background(), audit.EntityOrder, o.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audit.ActionOrderCreated, trail[0].Action)
}

func TestCreateOrderDefaultsAmountFromBasePrice(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t)

	o, err := f.svc.CreateOrder(context.Background(), order.CreateOrderRequest{CustomerID: c.ID, Quantity: 4}, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(o.Amount))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t)
	ctx := context.Background()

	for _, q := range []int{0, -1, 101} {
		_, err := f.svc.CreateOrder(ctx, order.CreateOrderRequest{CustomerID: c.ID, Quantity: q}, "")
		assert.True(t, apperr.Is(err, apperr.KindValidation), "quantity %d", q)
	}

	_, err := f.svc.CreateOrder(ctx, order.CreateOrderRequest{CustomerID: c.ID, Quantity: 1, Amount: decimal.NewFromInt(-5)}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, order.CreateOrderRequest{CustomerID: "00000000-0000-0000-0000-000000000000", Quantity: 1}, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, f.queue.events)
}

func TestCreateOrderExhaustsOrderNumberRetries(t *testing.T) {
	f := newFixture(t)
	first := f.pendingOrder(t, 1)

	attempts := 0
	f.svc.NewOrderNumber = func() (string, error) {
		attempts++
		return first.OrderNumber, nil
	}

	_, err := f.svc.CreateOrder(context.Background(), order.CreateOrderRequest{CustomerID: first.CustomerID, Quantity: 1}, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRetryExhausted))
	assert.Equal(t, 3, attempts)
}

func TestGenerateOrderNumberIsUniqueUnderConcurrency(t *testing.T) {
	const n = 1000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := order.GenerateOrderNumber()
			require.NoError(t, err)
			mu.Lock()
			seen[number] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestConfirmPaymentActivatesTicketsAndUpdatesCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 3)

	paid, err := f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID, Reference: "bank-42"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, paid.Status)
	assert.Equal(t, "manual", paid.PaymentMethod)
	assert.Equal(t, "bank-42", paid.PaymentReference)
	require.True(t, paid.PaidAmount.Valid)
	assert.True(t, o.Amount.Equal(paid.PaidAmount.Decimal))
	require.NotNil(t, paid.PaidAt)

	require.Len(t, paid.Tickets, 3)
	for _, tk := range paid.Tickets {
		assert.Equal(t, models.TicketActive, tk.Status)
		assert.NotEmpty(t, tk.QRCodePath)
	}

	c, err := f.customers.Get(ctx, o.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalOrders)
	assert.True(t, o.Amount.Equal(c.TotalSpent))
	require.NotNil(t, c.LastPurchase)

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaymentConfirmed}, f.queue.events)
}

func TestConfirmPaymentTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	_, err := f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.ErrorIs(t, err, order.ErrOrderAlreadyCompleted)
	assert.Contains(t, err.Error(), "already completed")

	c, err := f.customers.Get(ctx, o.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalOrders)
	assert.True(t, o.Amount.Equal(c.TotalSpent))
}

func TestConfirmPaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	_, err := f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: "00000000-0000-0000-0000-000000000000"}, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID, PaidAmount: decimal.RequireFromString("10.00")}, "")
	assert.ErrorIs(t, err, order.ErrUnderpaid)

	_, err = f.svc.CancelOrder(ctx, o.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	assert.ErrorIs(t, err, order.ErrOrderCancelled)
}

func TestCancelOrderCancelsTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 2)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	for _, tk := range got.Tickets {
		assert.Equal(t, models.TicketCancelled, tk.Status)
	}

	_, err = f.svc.CancelOrder(ctx, o.ID, "admin")
	assert.ErrorIs(t, err, order.ErrOrderNotPending)
}

func TestRefundOrderReversesCustomerStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 2)

	_, err := f.svc.RefundOrder(ctx, o.ID, "rain", "admin")
	assert.ErrorIs(t, err, order.ErrOrderNotCompleted)

	_, err = f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	require.NoError(t, err)

	refunded, err := f.svc.RefundOrder(ctx, o.ID, "rain", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, refunded.Status)
	assert.Equal(t, "rain", refunded.RefundReason)
	require.NotNil(t, refunded.RefundedAt)

	c, err := f.customers.Get(ctx, o.CustomerID)
	require.NoError(t, err)
	assert.Zero(t, c.TotalOrders)
	assert.True(t, c.TotalSpent.IsZero())

	ts, err := f.tickets.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	for _, tk := range ts {
		assert.Equal(t, models.TicketCancelled, tk.Status)
	}
	assert.Contains(t, f.queue.events, models.EventOrderRefunded)
}

func TestQueueFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("broker down")
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	paid, err := f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, paid.Status)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)
}

func TestInitializePaymentStoresReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.MatchedBy(func(r payment.ChargeRequest) bool {
		return r.OrderID == o.ID && r.Email == "ada@example.com" && r.Amount.Equal(o.Amount)
	})).Return(&payment.Charge{Reference: "ref-1", AuthorizationURL: "https://checkout/ref-1"}, nil)

	init, err := f.svc.InitializePayment(ctx, o.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout/ref-1", init.Charge.AuthorizationURL)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got.PaymentReference)
	assert.Equal(t, models.OrderPending, got.Status)
	f.gateway.AssertExpectations(t)
}

func TestInitializePaymentGatewayFailureLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDependency))

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PaymentReference)
	assert.Equal(t, models.OrderPending, got.Status)
}

func TestVerifyPaymentConfirmsPaidCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 2)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(&payment.Charge{Reference: "ref-2"}, nil)
	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.NoError(t, err)

	f.gateway.On("VerifyCharge", mock.Anything, "ref-2").Return(&payment.Verification{
		Reference: "ref-2", OrderID: o.ID, Paid: true, Amount: o.Amount, Method: "paystack:card", Status: "success",
	}, nil).Once()

	paid, err := f.svc.VerifyPayment(ctx, "ref-2", "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, paid.Status)
	assert.Equal(t, "paystack:card", paid.PaymentMethod)

	again, err := f.svc.VerifyPayment(ctx, "ref-2", "")
	require.NoError(t, err, "verifying a completed order is idempotent")
	assert.Equal(t, models.OrderCompleted, again.Status)
	f.gateway.AssertNumberOfCalls(t, "VerifyCharge", 1)
}

func TestVerifyPaymentRejectsUnpaidAndMismatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(&payment.Charge{Reference: "ref-3"}, nil)
	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.NoError(t, err)

	f.gateway.On("VerifyCharge", mock.Anything, "ref-3").Return(&payment.Verification{Paid: false, Status: "abandoned"}, nil).Once()
	_, err = f.svc.VerifyPayment(ctx, "ref-3", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	f.gateway.On("VerifyCharge", mock.Anything, "ref-3").Return(&payment.Verification{Paid: true, OrderID: "someone-else", Amount: o.Amount}, nil).Once()
	_, err = f.svc.VerifyPayment(ctx, "ref-3", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.VerifyPayment(ctx, "unknown-ref", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.On("ParseWebhook", []byte("forged"), mock.Anything).Return(nil, payment.ErrInvalidSignature)
	err := f.svc.HandleWebhook(ctx, []byte("forged"), http.Header{})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	f.gateway.On("ParseWebhook", []byte("ignored"), mock.Anything).Return(&payment.WebhookEvent{Type: "transfer.success"}, nil)
	assert.NoError(t, f.svc.HandleWebhook(ctx, []byte("ignored"), http.Header{}))

	f.gateway.On("ParseWebhook", []byte("unknown"), mock.Anything).Return(&payment.WebhookEvent{Type: "charge.success", Reference: "nope"}, nil)
	assert.NoError(t, f.svc.HandleWebhook(ctx, []byte("unknown"), http.Header{}))
}

func TestListOrdersFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)
	_, err := f.svc.CreateOrder(ctx, order.CreateOrderRequest{CustomerID: o.CustomerID, Quantity: 2}, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, order.ConfirmRequest{OrderID: o.ID}, "")
	require.NoError(t, err)

	page, err := f.svc.ListOrders(ctx, order.ListRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, o.ID, page.Orders[0].ID)

	page, err = f.svc.ListOrders(ctx, order.ListRequest{CustomerID: o.CustomerID, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 200, page.Limit)

	_, err = f.svc.ListOrders(ctx, order.ListRequest{Status: "LOST"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

type busyLocks struct{}

func (busyLocks) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, false, nil
}

func (busyLocks) Held(context.Context, string) (bool, error) { return true, nil }

func TestVerifyPaymentInFlightIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(&payment.Charge{Reference: "ref-4"}, nil)
	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.NoError(t, err)

	locked := order.NewOrderService(order.Dependencies{
		DB:        f.svc.DB,
		Customers: f.customers,
		Tickets:   f.tickets,
		Gateway:   f.gateway,
		Locks:     busyLocks{},
		Logger:    logger.NewNop(),
	})
	_, err = locked.VerifyPayment(ctx, "ref-4", "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	f.gateway.AssertNotCalled(t, "VerifyCharge", mock.Anything, mock.Anything)
}

func TestInitializePaymentWhileVerifyingIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(&payment.Charge{Reference: "ref-5"}, nil).Once()
	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.NoError(t, err)

	locked := order.NewOrderService(order.Dependencies{
		DB:        f.svc.DB,
		Customers: f.customers,
		Tickets:   f.tickets,
		Gateway:   f.gateway,
		Locks:     busyLocks{},
		Logger:    logger.NewNop(),
	})
	_, err = locked.InitializePayment(ctx, o.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	f.gateway.AssertNumberOfCalls(t, "InitializeCharge", 1)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-5", got.PaymentReference)
}

func TestVerifyPaymentRejectsShortCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.pendingOrder(t, 1)

	f.gateway.On("InitializeCharge", mock.Anything, mock.Anything).Return(&payment.Charge{Reference: "ref-6"}, nil)
	_, err := f.svc.InitializePayment(ctx, o.ID, "")
	require.NoError(t, err)

	for _, amount := range []string{"0", "74.99"} {
		f.gateway.On("VerifyCharge", mock.Anything, "ref-6").Return(&payment.Verification{
			Reference: "ref-6", OrderID: o.ID, Paid: true, Amount: decimal.RequireFromString(amount), Status: "success",
		}, nil).Once()

		_, err = f.svc.VerifyPayment(ctx, "ref-6", "")
		assert.True(t, apperr.Is(err, apperr.KindValidation), amount)
		assert.ErrorIs(t, err, order.ErrUnderpaid, amount)
	}

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	c, err := f.customers.Get(ctx, o.CustomerID)
	require.NoError(t, err)
	assert.Zero(t, c.TotalOrders)
}
