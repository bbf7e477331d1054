package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu            sync.Mutex
	confirmations []notify.OrderConfirmation
}

func (r *recorder) SendOrderConfirmation(_ context.Context, n notify.OrderConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations = append(r.confirmations, n)
	return nil
}

func (r *recorder) SendShippingUpdate(context.Context, notify.ShippingUpdate) error { return nil }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.confirmations)
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id]
}

func (d *memDedup) Mark(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
}

type fixture struct {
	o        *checkout.Orchestrator
	st       *memstore.Store
	sent     *recorder
	provider *payment.OfflineProvider
}

func newFixture(t *testing.T, deferred bool) *fixture {
	t.Helper()
	st := memstore.New()
	st.Seed(memstore.DemoCatalog()...)
	log := zaptest.NewLogger(t)
	sent := &recorder{}

	f := &fixture{st: st, sent: sent}
	f.o = &checkout.Orchestrator{
		Catalog:     st,
		Pricing:     pricing.DefaultCalculator(),
		Inventory:   &inventory.Ledger{Store: st, Tx: st.InventoryTx(), Catalog: st, Log: log},
		Orders:      &orders.Ledger{Store: st, Notifier: sent, Log: log},
		Tx:          st.CheckoutTx(),
		Retry:       checkout.RetryPolicy{Attempts: 2, Backoff: time.Millisecond},
		Currency:    "usd",
		FrontendURL: "http://shop.test",
		Log:         log,
	}
	if deferred {
		f.provider = &payment.OfflineProvider{FrontendURL: "http://shop.test", WebhookSecret: "whsec_test"}
		f.o.Payments = f.provider
	}
	return f
}

func cart(items ...checkout.Item) checkout.Request {
	return checkout.Request{
		Items:         items,
		CustomerEmail: "Ada@Example.com",
		CustomerName:  "Ada Lovelace",
		ShippingAddress: checkout.Address{
			Line1: "1 Main St", City: "Springfield", State: "IL", Zip: "62701",
		},
	}
}

func item(sku string, qty int) checkout.Item {
	return checkout.Item{ProductID: "P1", VariantSKU: sku, Quantity: qty}
}

func TestDirectCheckout(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.o.Checkout(ctx, cart(item("RED-M", 2)))
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	o := res.Order
	assert.Equal(t, checkout.FlowDirect, res.Flow)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, "40.00", money.Format(o.Subtotal))
	assert.Equal(t, "5.99", money.Format(o.Shipping))
	assert.Equal(t, "3.20", money.Format(o.Tax))
	assert.Equal(t, "49.19", money.Format(o.Total))
	assert.Equal(t, "ada@example.com", o.Customer.Email)
	assert.Equal(t, "US", o.ShippingAddress.Country)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Classic Tee", o.Items[0].Title)
	assert.Equal(t, "20.00", money.Format(o.Items[0].UnitPrice))

	assert.Equal(t, 3, f.st.Stock("P1", "RED-M"))
	assert.Equal(t, 1, f.sent.count())

	stored, err := f.o.Orders.FindByNumber(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)

	// 3 left is under the threshold
	alerts, err := f.st.OpenAlerts(ctx, "P1", "RED-M")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, inventory.AlertLowStock, alerts[0].Type)
}

func TestDirectCheckoutInsufficientStock(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.o.Checkout(context.Background(), cart(item("RED-M", 10)))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindInsufficientStock, ae.Kind)
	assert.Equal(t, 5, ae.Available)
	assert.Equal(t, 1, ae.Line)
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
	assert.Zero(t, f.st.OrderCount())
	assert.Zero(t, f.sent.count())
}

func TestRepeatedSKUsAreSummed(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.o.Checkout(ctx, cart(item("RED-M", 3), item("RED-M", 3)))
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))

	res, err := f.o.Checkout(ctx, cart(item("RED-M", 2), item("RED-M", 3)))
	require.NoError(t, err)
	assert.Len(t, res.Order.Items, 2)
	assert.Equal(t, 0, f.st.Stock("P1", "RED-M"))
}

func TestUnknownAndInactiveProducts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.o.Checkout(ctx, cart(item("BLUE-S", 1)))
	assert.ErrorIs(t, err, apperr.ErrVariantNotFound)

	req := cart(checkout.Item{ProductID: "P3", VariantSKU: "GRY-M", Quantity: 1})
	_, err = f.o.Checkout(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrProductUnavailable)

	_, err = f.o.Checkout(ctx, cart(item("RED-M", 0)))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, f.st.OrderCount())
}

// staleCatalog prices against a snapshot with plenty of stock, so the
// shortfall is only found when stock is reserved.
type staleCatalog struct{ st *memstore.Store }

func (c staleCatalog) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := c.st.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range p.Variants {
		p.Variants[i].Stock = 100
	}
	return p, nil
}

func TestReservationIsAllOrNothing(t *testing.T) {
	f := newFixture(t, false)
	f.o.Catalog = staleCatalog{f.st}

	_, err := f.o.Checkout(context.Background(), cart(item("RED-L", 4), item("RED-M", 6)))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindInsufficientStock, ae.Kind)
	assert.Equal(t, 2, ae.Line)
	assert.Equal(t, "line 2: insufficient stock for Classic Tee (Red/M), only 5 available", ae.Error())
	assert.Equal(t, 12, f.st.Stock("P1", "RED-L"))
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
	assert.Zero(t, f.st.OrderCount())
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, false)
	f.o.Catalog = staleCatalog{f.st}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.o.Checkout(context.Background(), cart(item("RED-M", 1)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
				return
			}
			assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, placed)
	assert.Equal(t, 7, rejected)
	assert.Equal(t, 0, f.st.Stock("P1", "RED-M"))
	assert.Equal(t, 5, f.st.OrderCount())
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	req := cart(item("RED-M", 2))
	req.IdempotencyKey = "retry-123"
	first, err := f.o.Checkout(ctx, req)
	require.NoError(t, err)

	req = cart(item("RED-M", 2))
	req.IdempotencyKey = "retry-123"
	second, err := f.o.Checkout(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 3, f.st.Stock("P1", "RED-M"))
	assert.Equal(t, 1, f.st.OrderCount())
	assert.Equal(t, 1, f.sent.count())
}

func TestDeferredCheckoutLeavesStockAlone(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.o.Checkout(context.Background(), cart(item("RED-M", 2)))
	require.NoError(t, err)

	assert.Equal(t, checkout.FlowDeferred, res.Flow)
	require.NotNil(t, res.Session)
	assert.Equal(t, "mock_session_"+res.OrderNumber, res.Session.ID)
	assert.Contains(t, res.Session.URL, "http://shop.test/checkout/success")
	assert.Nil(t, res.Order)
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
	assert.Zero(t, f.st.OrderCount())
}

func openSession(t *testing.T, f *fixture, qty int) (*checkout.Result, []byte, string) {
	t.Helper()
	res, err := f.o.Checkout(context.Background(), cart(item("RED-M", qty)))
	require.NoError(t, err)
	payload, sig, err := f.provider.SignedCompletion(res.Session.ID)
	require.NoError(t, err)
	return res, payload, sig
}

func TestConfirmPaymentCreatesOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	res, payload, sig := openSession(t, f, 2)

	conf, err := f.o.ConfirmPayment(ctx, payload, sig)
	require.NoError(t, err)
	require.NotNil(t, conf.Order)
	assert.False(t, conf.Duplicate)

	o := conf.Order
	assert.Equal(t, res.OrderNumber, o.Number)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, res.Session.ID, o.PaymentSessionID)
	assert.NotEmpty(t, o.PaymentIntentID)
	assert.Equal(t, "49.19", money.Format(o.Total))
	assert.Equal(t, 3, f.st.Stock("P1", "RED-M"))
	assert.Equal(t, 1, f.sent.count())

	found, err := f.o.SessionOrder(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, found.Number)
}

func TestConfirmPaymentRebindsClaimAfterNumberCollision(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	res, payload, sig := openSession(t, f, 1)

	// someone else already holds the pre-assigned number
	require.NoError(t, f.st.Insert(ctx, &orders.Order{Number: res.OrderNumber, Status: orders.StatusPending}))

	conf, err := f.o.ConfirmPayment(ctx, payload, sig)
	require.NoError(t, err)
	assert.NotEqual(t, res.OrderNumber, conf.Order.Number)

	claimed, ok := f.st.ClaimedOrder(res.Session.ID)
	require.True(t, ok)
	assert.Equal(t, conf.Order.Number, claimed)
}

func TestConfirmPaymentRedeliveryIsIdempotent(t *testing.T) {
	for _, withDedup := range []bool{false, true} {
		f := newFixture(t, true)
		if withDedup {
			f.o.Dedup = &memDedup{seen: map[string]bool{}}
		}
		ctx := context.Background()
		_, payload, sig := openSession(t, f, 2)

		first, err := f.o.ConfirmPayment(ctx, payload, sig)
		require.NoError(t, err)
		again, err := f.o.ConfirmPayment(ctx, payload, sig)
		require.NoError(t, err)

		assert.True(t, again.Duplicate)
		assert.Equal(t, first.Order.Number, again.Order.Number)
		assert.Equal(t, 1, f.st.OrderCount())
		assert.Equal(t, 3, f.st.Stock("P1", "RED-M"))
		assert.Equal(t, 1, f.sent.count())
	}
}

func TestConcurrentConfirmationsCreateOneOrder(t *testing.T) {
	f := newFixture(t, true)
	_, payload, sig := openSession(t, f, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conf, err := f.o.ConfirmPayment(context.Background(), payload, sig)
			if !assert.NoError(t, err) {
				return
			}
			if !conf.Duplicate {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.st.OrderCount())
	assert.Equal(t, 4, f.st.Stock("P1", "RED-M"))
}

func TestConfirmPaymentRejectsBadSignature(t *testing.T) {
	f := newFixture(t, true)
	_, payload, _ := openSession(t, f, 2)

	_, err := f.o.ConfirmPayment(context.Background(), payload, payment.Sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, apperr.ErrWebhookVerification)
	_, err = f.o.ConfirmPayment(context.Background(), payload, "")
	assert.ErrorIs(t, err, apperr.ErrWebhookVerification)

	assert.Zero(t, f.st.OrderCount())
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
}

func TestConfirmPaymentIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, true)
	payload := []byte(`{"id":"evt_1","object":"event","type":"charge.refunded","api_version":"2024-09-30.acacia","data":{"object":{}}}`)

	conf, err := f.o.ConfirmPayment(context.Background(), payload, payment.Sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.True(t, conf.Ignored)
	assert.Zero(t, f.st.OrderCount())
}

func TestConfirmPaymentStockGoneRollsBackClaim(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, payload, sig := openSession(t, f, 2)

	// another buyer took the stock while the customer was paying
	_, err := f.st.DecrementStock(ctx, "P1", "RED-M", 4)
	require.NoError(t, err)

	_, err = f.o.ConfirmPayment(ctx, payload, sig)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Zero(t, f.st.OrderCount())
	assert.Equal(t, 1, f.st.Stock("P1", "RED-M"))

	// the provider redelivers after a restock; the claim did not survive the failure
	_, err = f.st.IncrementStock(ctx, "P1", "RED-M", 10)
	require.NoError(t, err)
	conf, err := f.o.ConfirmPayment(ctx, payload, sig)
	require.NoError(t, err)
	assert.False(t, conf.Duplicate)
	assert.Equal(t, 9, f.st.Stock("P1", "RED-M"))
}

func TestDeferredWithoutProvider(t *testing.T) {
	f := newFixture(t, false)
	req := cart(item("RED-M", 1))
	req.Flow = checkout.FlowDeferred
	_, err := f.o.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.o.ConfirmPayment(context.Background(), []byte("{}"), "sig")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDirectFlowRefusedWithProvider(t *testing.T) {
	f := newFixture(t, true)
	req := cart(item("RED-M", 1))
	req.Flow = checkout.FlowDirect

	res, err := f.o.Checkout(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
	assert.Zero(t, f.st.OrderCount())
}

func TestMatchingFlowIsAccepted(t *testing.T) {
	f := newFixture(t, true)
	req := cart(item("RED-M", 1))
	req.Flow = checkout.FlowDeferred

	res, err := f.o.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, checkout.FlowDeferred, res.Flow)
	assert.Equal(t, 5, f.st.Stock("P1", "RED-M"))
}
