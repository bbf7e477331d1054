package orders_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/money"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendOrderConfirmation(ctx context.Context, n notify.OrderConfirmation) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotifier) SendShippingUpdate(ctx context.Context, n notify.ShippingUpdate) error {
	return m.Called(ctx, n).Error(0)
}

type mapCache struct {
	mu   sync.Mutex
	m    map[string]orders.Status
	hits int
}

func (c *mapCache) Get(_ context.Context, number string) (orders.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[number]
	if ok {
		c.hits++
	}
	return s, ok
}

func (c *mapCache) Set(_ context.Context, number string, s orders.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[number] = s
}

func (c *mapCache) Invalidate(_ context.Context, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, number)
}

func newOrder(email string) orders.NewOrder {
	return orders.NewOrder{
		Customer: orders.Customer{Name: "Ada", Email: email},
		ShippingAddress: orders.Address{
			Line1: "1 Main St", City: "Springfield", State: "IL", Zip: "62701",
		},
		Items: []orders.LineItem{{
			ProductID: "P1", Title: "Tee", SKU: "RED-M", Color: "Red", Size: "M",
			UnitPrice: money.MustParse("20.00"), Quantity: 2,
		}},
		Totals: orders.Totals{
			Subtotal: money.MustParse("40.00"),
			Shipping: money.MustParse("5.99"),
			Tax:      money.MustParse("3.20"),
			Total:    money.MustParse("49.19"),
		},
	}
}

func TestCreateDefaults(t *testing.T) {
	l := &orders.Ledger{Store: memstore.New()}
	o, err := l.Create(context.Background(), newOrder("  Ada@Example.COM "))
	require.NoError(t, err)

	assert.Regexp(t, `^VG-[0-9A-Z]+-[0-9A-Z]{4}$`, o.Number)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "ada@example.com", o.Customer.Email)
	assert.Equal(t, "US", o.ShippingAddress.Country)
	assert.Equal(t, "49.19", money.Format(o.Total))
	assert.False(t, o.CreatedAt.IsZero())

	_, err = l.Create(context.Background(), orders.NewOrder{Customer: orders.Customer{Email: "a@b.c"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRetriesNumberCollision(t *testing.T) {
	st := memstore.New()
	numbers := []string{"VG-1-AAAA", "VG-1-AAAA", "VG-1-AAAA", "VG-1-BBBB"}
	var mu sync.Mutex
	l := &orders.Ledger{Store: st, NewNumber: func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}}

	first, err := l.Create(context.Background(), newOrder("a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "VG-1-AAAA", first.Number)

	second, err := l.Create(context.Background(), newOrder("a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "VG-1-BBBB", second.Number)
	assert.Equal(t, 2, st.OrderCount())
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	l := &orders.Ledger{Store: memstore.New(), NewNumber: func(time.Time) string { return "VG-1-SAME" }}
	_, err := l.Create(context.Background(), newOrder("a@example.com"))
	require.NoError(t, err)

	_, err = l.Create(context.Background(), newOrder("a@example.com"))
	assert.ErrorIs(t, err, apperr.ErrDuplicateOrderNumber)
}

func TestCreateRejectsReusedExternalID(t *testing.T) {
	l := &orders.Ledger{Store: memstore.New()}
	n := newOrder("a@example.com")
	n.ExternalID = "key-1"
	_, err := l.Create(context.Background(), n)
	require.NoError(t, err)

	_, err = l.Create(context.Background(), n)
	assert.ErrorIs(t, err, orders.ErrDuplicateExternalID)
	assert.False(t, apperr.Retryable(err))
}

func TestUpdateStatusLifecycle(t *testing.T) {
	n := &mockNotifier{}
	n.On("SendShippingUpdate", mock.Anything, mock.MatchedBy(func(u notify.ShippingUpdate) bool {
		return u.Status == "processing"
	})).Return(nil).Once()
	n.On("SendShippingUpdate", mock.Anything, mock.MatchedBy(func(u notify.ShippingUpdate) bool {
		return u.Status == "shipped" && u.Carrier == "UPS" && u.TrackingNumber == "1Z999"
	})).Return(nil).Once()

	l := &orders.Ledger{Store: memstore.New(), Notifier: n}
	ctx := context.Background()
	o, err := l.Create(ctx, newOrder("a@example.com"))
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, o.Number, orders.StatusProcessing, nil)
	require.NoError(t, err)
	got, err := l.UpdateStatus(ctx, o.Number, orders.StatusShipped, &orders.Tracking{Carrier: "UPS", Number: "1Z999"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	stored, err := l.FindByNumber(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.Tracking{Carrier: "UPS", Number: "1Z999"}, stored.Tracking)
	n.AssertExpectations(t)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	l := &orders.Ledger{Store: memstore.New()}
	ctx := context.Background()
	o, err := l.Create(ctx, newOrder("a@example.com"))
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, o.Number, orders.StatusDelivered, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.EqualError(t, err, fmt.Sprintf("order %s cannot move from pending to delivered", o.Number))

	_, err = l.UpdateStatus(ctx, o.Number, "lost", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = l.UpdateStatus(ctx, "VG-NOPE-0000", orders.StatusCancelled, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	stored, _ := l.FindByNumber(ctx, o.Number)
	assert.Equal(t, orders.StatusPending, stored.Status)
}

func TestCancelDoesNotNotify(t *testing.T) {
	n := &mockNotifier{}
	l := &orders.Ledger{Store: memstore.New(), Notifier: n}
	o, err := l.Create(context.Background(), newOrder("a@example.com"))
	require.NoError(t, err)

	_, err = l.UpdateStatus(context.Background(), o.Number, orders.StatusCancelled, nil)
	require.NoError(t, err)
	n.AssertNotCalled(t, "SendShippingUpdate", mock.Anything, mock.Anything)
}

func TestConcurrentUpdatesApplyOnce(t *testing.T) {
	l := &orders.Ledger{Store: memstore.New()}
	ctx := context.Background()
	o, err := l.Create(ctx, newOrder("a@example.com"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.UpdateStatus(ctx, o.Number, orders.StatusProcessing, nil); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, okCount)
}

func TestSendConfirmation(t *testing.T) {
	n := &mockNotifier{}
	n.On("SendOrderConfirmation", mock.Anything, mock.MatchedBy(func(c notify.OrderConfirmation) bool {
		return c.Total == "49.19" && len(c.Items) == 1 && c.Items[0].Variant == "Red/M" && c.ShippingAddress.Country == "US"
	})).Return(assert.AnError).Once()

	l := &orders.Ledger{Store: memstore.New(), Notifier: n}
	o, err := l.Create(context.Background(), newOrder("a@example.com"))
	require.NoError(t, err)

	// a failed send is logged, never surfaced
	l.SendConfirmation(context.Background(), o)
	n.AssertExpectations(t)
}

func TestFindByCustomerNewestFirst(t *testing.T) {
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	l := &orders.Ledger{Store: memstore.New(), Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}}
	ctx := context.Background()
	var numbers []string
	for i := 0; i < 3; i++ {
		o, err := l.Create(ctx, newOrder("ada@example.com"))
		require.NoError(t, err)
		numbers = append(numbers, o.Number)
	}
	_, err := l.Create(ctx, newOrder("bob@example.com"))
	require.NoError(t, err)

	list, err := l.FindByCustomer(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, numbers[2], list[0].Number)
	assert.Equal(t, numbers[0], list[2].Number)

	_, err = l.FindByCustomer(ctx, " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStatusOfUsesCache(t *testing.T) {
	cache := &mapCache{m: map[string]orders.Status{}}
	l := &orders.Ledger{Store: memstore.New(), Cache: cache}
	ctx := context.Background()
	o, err := l.Create(ctx, newOrder("a@example.com"))
	require.NoError(t, err)

	s, err := l.StatusOf(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, s)
	s, err = l.StatusOf(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, s)
	assert.Equal(t, 1, cache.hits)

	_, err = l.UpdateStatus(ctx, o.Number, orders.StatusProcessing, nil)
	require.NoError(t, err)
	s, err = l.StatusOf(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, s)
}
