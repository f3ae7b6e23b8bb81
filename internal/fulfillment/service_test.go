package fulfillment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/internal/repository/memory"
	"github.com/tournevent/printbridge/internal/telemetry"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type fixture struct {
	svc     *fulfillment.Service
	printer *mock.Printer
	repos   *repository.Repositories
	metrics *telemetry.Metrics
}

func newFixture(t *testing.T, cfg fulfillment.Config) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	p := mock.New("lulu")
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	if cfg.ContactEmail == "" {
		cfg.ContactEmail = "print@example.com"
	}
	svc := fulfillment.NewService(p, repos, cfg, otelzap.New(zap.NewNop()), fulfillment.WithMetrics(metrics))

	ctx := context.Background()
	require.NoError(t, repos.Product.Save(ctx, printBook("book")))
	require.NoError(t, repos.Product.Save(ctx, &domain.Product{ID: "mug", Name: "Mug", Type: domain.ProductTypeSimple}))
	noCover := printBook("draft")
	noCover.CoverURL = ""
	require.NoError(t, repos.Product.Save(ctx, noCover))

	return &fixture{svc: svc, printer: p, repos: repos, metrics: metrics}
}

func printBook(id string) *domain.Product {
	return &domain.Product{
		ID:   id,
		Name: "Book " + id,
		Type: domain.ProductTypePrintBook,
		PodPackage: printer.PodPackage{
			Trim: "0600X0900", Color: "BW", Print: "STD", Bind: "PB",
			Paper: "060UW444", Finish: "G", Linen: "X", Foil: "X",
		},
		PageCount:   120,
		CoverURL:    "https://files.example.com/" + id + "-cover.pdf",
		InteriorURL: "https://files.example.com/" + id + "-interior.pdf",
	}
}

func (f *fixture) saveOrder(t *testing.T, id string, status domain.OrderStatus, productIDs ...string) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:     id,
		Status: status,
		Email:  "buyer@example.com",
		Billing: domain.Address{
			FirstName: "Ada", LastName: "Lovelace", Phone: "5551234",
		},
		Shipping: domain.Address{
			FirstName: "Ada", LastName: "Lovelace", Address1: "1 Main St",
			City: "Raleigh", State: "NC", Postcode: "27601", Country: "US",
		},
	}
	for i, pid := range productIDs {
		order.Items = append(order.Items, domain.OrderItem{
			ID: id + "-" + string(rune('a'+i)), ProductID: pid, Name: pid, Quantity: 1,
		})
	}
	require.NoError(t, f.repos.Order.Save(context.Background(), order))
	return order
}

func (f *fixture) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.repos.Order.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) notes(t *testing.T, id string) []string {
	t.Helper()
	notes, err := f.repos.OrderNote.ListByOrderID(context.Background(), id)
	require.NoError(t, err)
	var out []string
	for _, n := range notes {
		out = append(out, n.Body)
	}
	return out
}

// withJob stores a print job id on an order and scripts its remote status.
func (f *fixture) withJob(t *testing.T, orderID, jobID string, stored, remote printer.JobStatus) {
	t.Helper()
	require.NoError(t, f.repos.Order.SetPrintJobID(context.Background(), orderID, jobID, stored))
	f.printer.SetStatus(jobID, &printer.JobStatusReport{Name: remote})
}

func TestHandlePaymentStatusChanged_SubmitsPaidOrder(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1042", domain.OrderStatusProcessing, "book", "mug", "draft", "")

	created, err := f.svc.HandlePaymentStatusChanged(context.Background(), "1042")
	require.NoError(t, err)
	require.NotNil(t, created)

	order := f.order(t, "1042")
	assert.Equal(t, created.ID, order.PrintJobID)
	assert.Equal(t, printer.StatusCreated, order.PrintJobStatus)

	job, ok := f.printer.Job(created.ID)
	require.True(t, ok)
	assert.Equal(t, "1042", job.ExternalID)
	assert.Equal(t, "print@example.com", job.ContactEmail)
	assert.Equal(t, printer.DefaultProductionDelay, job.ProductionDelay)
	assert.Equal(t, printer.ShippingMail, job.ShippingLevel)
	assert.Equal(t, "Ada Lovelace", job.ShippingAddress.Name)
	assert.Equal(t, "5551234", job.ShippingAddress.Phone)
	require.Len(t, job.LineItems, 1)
	assert.Equal(t, "0600X0900BWSTDPB060UW444GXX", job.LineItems[0].PodPackageID)

	assert.Len(t, f.notes(t, "1042"), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("create_print_job", "lulu", "success")))
}

func TestHandlePaymentStatusChanged_Skips(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "unpaid", domain.OrderStatusPending, "book")
	f.saveOrder(t, "no-print", domain.OrderStatusProcessing, "mug", "draft")
	f.saveOrder(t, "submitted", domain.OrderStatusCompleted, "book")
	f.withJob(t, "submitted", "J1", printer.StatusCreated, printer.StatusCreated)

	for _, id := range []string{"unpaid", "no-print", "submitted"} {
		created, err := f.svc.HandlePaymentStatusChanged(context.Background(), id)
		assert.NoError(t, err, id)
		assert.Nil(t, created, id)
	}

	assert.Equal(t, 0, f.printer.CreateCalls())
	assert.Empty(t, f.order(t, "unpaid").PrintJobID)
	assert.Empty(t, f.order(t, "no-print").PrintJobID)
	assert.Equal(t, "J1", f.order(t, "submitted").PrintJobID)
}

func TestHandlePaymentStatusChanged_UnknownOrder(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})

	_, err := f.svc.HandlePaymentStatusChanged(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHandlePaymentStatusChanged_FailureCanBeRetried(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "7", domain.OrderStatusProcessing, "book")
	f.printer.CreateErr = &printer.APIError{StatusCode: 400, Errors: printer.Errors{"line_items": "invalid"}}

	created, err := f.svc.HandlePaymentStatusChanged(context.Background(), "7")
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Empty(t, f.order(t, "7").PrintJobID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PrinterErrors.WithLabelValues("lulu", "api")))

	f.printer.CreateErr = nil
	created, err = f.svc.HandlePaymentStatusChanged(context.Background(), "7")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, created.ID, f.order(t, "7").PrintJobID)
}

func TestHandlePaymentStatusChanged_SubmitsOnce(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "9", domain.OrderStatusProcessing, "book")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.HandlePaymentStatusChanged(context.Background(), "9")
		}()
	}
	wg.Wait()

	_, _ = f.svc.HandlePaymentStatusChanged(context.Background(), "9")
	assert.Equal(t, 1, f.printer.CreateCalls())
}

func TestSubmitJob_Errors(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "unpaid", domain.OrderStatusOnHold, "book")
	f.saveOrder(t, "no-print", domain.OrderStatusProcessing, "draft")
	f.saveOrder(t, "done", domain.OrderStatusProcessing, "book")
	f.withJob(t, "done", "J1", printer.StatusCreated, printer.StatusCreated)

	_, err := f.svc.SubmitJob(context.Background(), "unpaid")
	assert.ErrorIs(t, err, fulfillment.ErrOrderNotPaid)

	_, err = f.svc.SubmitJob(context.Background(), "no-print")
	assert.ErrorIs(t, err, printer.ErrNothingToSubmit)

	_, err = f.svc.SubmitJob(context.Background(), "done")
	assert.ErrorIs(t, err, repository.ErrPrintJobExists)
}

func TestCheckStatus_RecordsChangeOnce(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, printer.StatusInProduction)

	check, err := f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, check.Changed)
	assert.Equal(t, printer.StatusCreated, check.Previous)
	assert.Equal(t, printer.StatusInProduction, check.Current)

	check, err = f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, check.Changed)

	assert.Equal(t, []string{"Print Fulfillment Status Updated: In Production"}, f.notes(t, "1"))
	assert.Equal(t, printer.StatusInProduction, f.order(t, "1").PrintJobStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StatusTransitions.WithLabelValues("IN_PRODUCTION")))
}

func TestCheckStatus_StoresUnknownStatusVerbatim(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, "ON_THE_MOON")

	_, err := f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, printer.JobStatus("ON_THE_MOON"), f.order(t, "1").PrintJobStatus)
	assert.Equal(t, []string{"Print Fulfillment Status Updated: Unknown"}, f.notes(t, "1"))
}

func TestCheckStatus_ShippedStoresTrackingAndNotifiesOnce(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusInProduction, printer.StatusInProduction)
	f.printer.SetShipped("J1", "1Z999", "https://track.example.com/1Z999")

	var fired []printer.TrackingInfo
	f.svc.OnShipped(func(ctx context.Context, order *domain.Order, info printer.TrackingInfo) {
		fired = append(fired, info)
	})

	check, err := f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)
	want := printer.TrackingInfo{"1Z999": "https://track.example.com/1Z999"}
	assert.Equal(t, want, check.Tracking)
	assert.Equal(t, want, f.order(t, "1").TrackingInfo)

	_, err = f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)

	require.Len(t, fired, 1)
	assert.Equal(t, want, fired[0])

	info, err := f.svc.GetTrackingInfo(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, want, info)
}

func TestCheckStatus_ListenerPanicIsContained(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, printer.StatusCreated)
	f.printer.SetShipped("J1", "T", "https://t/1")

	called := false
	f.svc.OnShipped(func(ctx context.Context, order *domain.Order, info printer.TrackingInfo) {
		panic("boom")
	})
	f.svc.OnShipped(func(ctx context.Context, order *domain.Order, info printer.TrackingInfo) {
		called = true
	})

	_, err := f.svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCheckStatus_Errors(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "none", domain.OrderStatusProcessing, "book")
	f.saveOrder(t, "down", domain.OrderStatusProcessing, "book")
	f.withJob(t, "down", "J1", printer.StatusCreated, printer.StatusCreated)
	f.printer.FailStatus("J1", printer.ErrTransport)
	f.saveOrder(t, "blank", domain.OrderStatusProcessing, "book")
	f.withJob(t, "blank", "J2", printer.StatusCreated, "")

	_, err := f.svc.CheckStatus(context.Background(), "none")
	assert.ErrorIs(t, err, fulfillment.ErrNoPrintJob)

	_, err = f.svc.CheckStatus(context.Background(), "down")
	assert.ErrorIs(t, err, printer.ErrTransport)
	assert.Equal(t, printer.StatusCreated, f.order(t, "down").PrintJobStatus)

	_, err = f.svc.CheckStatus(context.Background(), "blank")
	var parseErr *printer.ParseError
	assert.True(t, errors.As(err, &parseErr))

	info, err := f.svc.GetTrackingInfo(context.Background(), "none")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAutoCompleteOnShipped(t *testing.T) {
	tests := []struct {
		name     string
		mode     domain.AutoCompleteMode
		products []string
		want     domain.OrderStatus
	}{
		{"all print books", domain.AutoCompleteOnShipped, []string{"book", "draft"}, domain.OrderStatusCompleted},
		{"items without product ignored", domain.AutoCompleteOnShipped, []string{"book", ""}, domain.OrderStatusCompleted},
		{"mixed order", domain.AutoCompleteOnShipped, []string{"book", "mug"}, domain.OrderStatusProcessing},
		{"unknown product", domain.AutoCompleteOnShipped, []string{"book", "gone"}, domain.OrderStatusProcessing},
		{"disabled", domain.AutoCompleteNever, []string{"book"}, domain.OrderStatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fulfillment.Config{AutoComplete: tt.mode})
			f.saveOrder(t, "1", domain.OrderStatusProcessing, tt.products...)
			f.withJob(t, "1", "J1", printer.StatusInProduction, printer.StatusInProduction)
			f.printer.SetShipped("J1", "T", "https://t/1")

			_, err := f.svc.CheckStatus(context.Background(), "1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.order(t, "1").Status)
		})
	}
}

// panicky panics on status lookups of one job.
type panicky struct {
	*mock.Printer
	jobID string
}

func (p panicky) GetPrintJobStatus(ctx context.Context, id string) (*printer.JobStatusReport, error) {
	if id == p.jobID {
		panic("decoder bug")
	}
	return p.Printer.GetPrintJobStatus(ctx, id)
}

func TestSweep_IsolatesFailures(t *testing.T) {
	repos := memory.NewRepositories()
	p := mock.New("lulu")
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	svc := fulfillment.NewService(panicky{Printer: p, jobID: "J4"}, repos, fulfillment.Config{},
		otelzap.New(zap.NewNop()), fulfillment.WithMetrics(metrics))
	f := &fixture{svc: svc, printer: p, repos: repos, metrics: metrics}
	require.NoError(t, repos.Product.Save(context.Background(), printBook("book")))

	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, printer.StatusInProduction)
	f.saveOrder(t, "2", domain.OrderStatusProcessing, "book")
	f.withJob(t, "2", "J2", printer.StatusCreated, printer.StatusCreated)
	p.FailStatus("J2", printer.ErrTransport)
	f.saveOrder(t, "3", domain.OrderStatusProcessing, "book")
	f.withJob(t, "3", "J3", printer.StatusCreated, printer.StatusCanceled)
	f.saveOrder(t, "4", domain.OrderStatusProcessing, "book")
	f.withJob(t, "4", "J4", printer.StatusCreated, printer.StatusCreated)
	f.saveOrder(t, "5", domain.OrderStatusCompleted, "book")
	f.withJob(t, "5", "J5", printer.StatusCreated, printer.StatusShipped)
	f.saveOrder(t, "6", domain.OrderStatusProcessing, "book")

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 2, report.Changed)
	assert.Equal(t, 2, report.Failed)
	assert.ErrorIs(t, report.Errors["2"], printer.ErrTransport)
	assert.ErrorContains(t, report.Errors["4"], "panicked")

	assert.Equal(t, printer.StatusInProduction, f.order(t, "1").PrintJobStatus)
	assert.Equal(t, printer.StatusCanceled, f.order(t, "3").PrintJobStatus)
	assert.Equal(t, printer.StatusCreated, f.order(t, "5").PrintJobStatus)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.SweepOrders.WithLabelValues("checked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SweepOrders.WithLabelValues("failed")))
}

func TestScheduler_RunSweepsUntilCanceled(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, printer.StatusCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := fulfillment.NewScheduler(f.svc, 10*time.Millisecond, nil).Run(ctx)
	assert.NoError(t, err)
	assert.Greater(t, f.printer.StatusCalls(), 1)
}

func TestRefreshProductPrintCost(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	ctx := context.Background()

	product, err := f.svc.RefreshProductPrintCost(ctx, "book", false)
	require.NoError(t, err)
	require.True(t, product.HasPrintCost())
	assert.True(t, decimal.RequireFromString("5.00").Equal(product.PrintCostInclTax.Decimal))
	assert.Equal(t, "0600X0900BWSTDPB060UW444GXX", product.QuotedPodPackageID)
	assert.Empty(t, product.Errors)

	_, err = f.svc.RefreshProductPrintCost(ctx, "book", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.printer.QuoteCalls())

	_, err = f.svc.RefreshProductPrintCost(ctx, "book", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.printer.QuoteCalls())

	f.printer.QuoteErrors = printer.Errors{"403": "bad key"}
	product, err = f.svc.RefreshProductPrintCost(ctx, "book", true)
	require.NoError(t, err)
	assert.False(t, product.HasPrintCost())
	assert.Equal(t, printer.Errors{"403": "bad key"}, product.Errors)

	_, err = f.svc.RefreshProductPrintCost(ctx, "mug", true)
	assert.ErrorIs(t, err, fulfillment.ErrNotPrintBook)
}

func TestRefreshProductPrintCost_StaleAfterPageCountChange(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	ctx := context.Background()

	_, err := f.svc.RefreshProductPrintCost(ctx, "book", false)
	require.NoError(t, err)

	product, err := f.repos.Product.GetByID(ctx, "book")
	require.NoError(t, err)
	product.PageCount = 200
	require.NoError(t, f.repos.Product.Save(ctx, product))

	product, err = f.svc.RefreshProductPrintCost(ctx, "book", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.printer.QuoteCalls())
	assert.Equal(t, uint(200), product.QuotedPageCount)
}

func TestShippingRate(t *testing.T) {
	dest := printer.ShippingAddress{CountryCode: "US", StateCode: "NC", City: "Raleigh", Postcode: "27601"}
	items := []domain.OrderItem{{ID: "a", ProductID: "book", Quantity: 2}, {ID: "b", ProductID: "mug", Quantity: 1}}

	disabled := newFixture(t, fulfillment.Config{})
	rate, err := disabled.svc.ShippingRate(context.Background(), items, dest)
	require.NoError(t, err)
	assert.Nil(t, rate)
	assert.Equal(t, 0, disabled.printer.QuoteCalls())

	f := newFixture(t, fulfillment.Config{
		ShippingEnabled:  true,
		ShippingFeeLabel: "Printed & shipped",
		HandlingFee:      decimal.RequireFromString("1.00"),
	})
	rate, err = f.svc.ShippingRate(context.Background(), items, dest)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "lulu_shipping", rate.ID)
	assert.Equal(t, "Printed & shipped", rate.Label)
	assert.Equal(t, "Print", rate.Package)
	assert.True(t, decimal.RequireFromString("4.99").Equal(rate.Cost))
	assert.Equal(t, "USD", rate.Currency)

	rate, err = f.svc.ShippingRate(context.Background(), items[1:], dest)
	require.NoError(t, err)
	assert.Nil(t, rate)

	f.printer.QuoteErrors = printer.Errors{"shipping_address": "invalid"}
	rate, err = f.svc.ShippingRate(context.Background(), items, dest)
	require.NoError(t, err)
	assert.Nil(t, rate)
}

func TestQuoteOrder(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	f.saveOrder(t, "1", domain.OrderStatusPending, "book", "mug")

	result, err := f.svc.QuoteOrder(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, result.Success())
	require.Len(t, result.Cost.LineItemCosts, 1)
	assert.True(t, decimal.RequireFromString("8.99").Equal(result.Cost.TotalCostInclTax))

	_, err = f.svc.QuoteOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStatusTexts(t *testing.T) {
	assert.Equal(t, "Shipped", fulfillment.StatusLabel(printer.StatusShipped))
	assert.Equal(t, "N/A", fulfillment.StatusLabel(""))
	assert.Equal(t, "No Print-Job", fulfillment.StatusDescription(""))
}

func TestUpdateCredentials_Unsupported(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	err := f.svc.UpdateCredentials(context.Background(), printer.Credentials{SandboxKey: "k"})
	assert.Error(t, err)
}

func TestSyncOrder_KeepsPrintFieldsAndSubmitsWhenPaid(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	ctx := context.Background()

	pending := &domain.Order{ID: "5", Status: domain.OrderStatusPending, Items: []domain.OrderItem{{ID: "a", ProductID: "book", Quantity: 1}}}
	created, err := f.svc.SyncOrder(ctx, pending)
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Equal(t, 0, f.printer.CreateCalls())

	paid := &domain.Order{ID: "5", Status: domain.OrderStatusProcessing, Items: pending.Items}
	created, err = f.svc.SyncOrder(ctx, paid)
	require.NoError(t, err)
	require.NotNil(t, created)

	resent := &domain.Order{ID: "5", Status: domain.OrderStatusProcessing, Items: pending.Items, PrintJobID: "forged"}
	created, err = f.svc.SyncOrder(ctx, resent)
	require.NoError(t, err)
	assert.Nil(t, created)

	order := f.order(t, "5")
	assert.NotEqual(t, "forged", order.PrintJobID)
	assert.NotEmpty(t, order.PrintJobID)
	assert.Equal(t, 1, f.printer.CreateCalls())
}

func TestSyncProduct(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})
	ctx := context.Background()

	product, err := f.svc.SyncProduct(ctx, printBook("new"))
	require.NoError(t, err)
	assert.True(t, product.HasPrintCost())

	product, err = f.svc.SyncProduct(ctx, printBook("new"))
	require.NoError(t, err)
	assert.True(t, product.HasPrintCost())
	assert.Equal(t, 1, f.printer.QuoteCalls())

	simple, err := f.svc.SyncProduct(ctx, &domain.Product{ID: "poster", Type: domain.ProductTypeSimple})
	require.NoError(t, err)
	assert.False(t, simple.HasPrintCost())
	assert.Equal(t, 1, f.printer.QuoteCalls())
}

// flakyTracking fails the first tracking write.
type flakyTracking struct {
	repository.OrderRepository
	mu     sync.Mutex
	failed bool
}

func (r *flakyTracking) UpdateTracking(ctx context.Context, id string, info printer.TrackingInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.failed {
		r.failed = true
		return errors.New("db blip")
	}
	return r.OrderRepository.UpdateTracking(ctx, id, info)
}

func TestCheckStatus_ShippedRetriedAfterTrackingWriteFails(t *testing.T) {
	repos := memory.NewRepositories()
	repos.Order = &flakyTracking{OrderRepository: repos.Order}
	p := mock.New("lulu")
	svc := fulfillment.NewService(p, repos, fulfillment.Config{}, otelzap.New(zap.NewNop()))
	f := &fixture{svc: svc, printer: p, repos: repos}
	require.NoError(t, repos.Product.Save(context.Background(), printBook("book")))

	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusInProduction, printer.StatusInProduction)
	p.SetShipped("J1", "1Z999", "https://track.example.com/1Z999")

	fired := 0
	svc.OnShipped(func(ctx context.Context, order *domain.Order, info printer.TrackingInfo) {
		fired++
	})

	_, err := svc.CheckStatus(context.Background(), "1")
	require.ErrorContains(t, err, "db blip")
	assert.Equal(t, printer.StatusInProduction, f.order(t, "1").PrintJobStatus)
	assert.Zero(t, fired)

	check, err := svc.CheckStatus(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, check.Changed)
	want := printer.TrackingInfo{"1Z999": "https://track.example.com/1Z999"}
	assert.Equal(t, want, f.order(t, "1").TrackingInfo)
	assert.Equal(t, printer.StatusShipped, f.order(t, "1").PrintJobStatus)
	assert.Equal(t, 1, fired)
}

// gatedPrinter blocks status lookups until release is closed.
type gatedPrinter struct {
	*mock.Printer
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedPrinter) GetPrintJobStatus(ctx context.Context, id string) (*printer.JobStatusReport, error) {
	p.once.Do(func() { close(p.started) })
	<-p.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Printer.GetPrintJobStatus(ctx, id)
}

func TestCheckStatus_CanceledCallerLeavesSharedCheck(t *testing.T) {
	repos := memory.NewRepositories()
	p := &gatedPrinter{Printer: mock.New("lulu"), started: make(chan struct{}), release: make(chan struct{})}
	svc := fulfillment.NewService(p, repos, fulfillment.Config{}, otelzap.New(zap.NewNop()))
	f := &fixture{svc: svc, printer: p.Printer, repos: repos}
	require.NoError(t, repos.Product.Save(context.Background(), printBook("book")))
	f.saveOrder(t, "1", domain.OrderStatusProcessing, "book")
	f.withJob(t, "1", "J1", printer.StatusCreated, printer.StatusInProduction)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CheckStatus(firstCtx, "1")
		firstErr <- err
	}()
	<-p.started

	second := make(chan *fulfillment.StatusCheck, 1)
	go func() {
		check, err := svc.CheckStatus(context.Background(), "1")
		assert.NoError(t, err)
		second <- check
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(p.release)
	check := <-second
	require.NotNil(t, check)
	assert.Equal(t, printer.StatusInProduction, check.Current)
	assert.Equal(t, printer.StatusInProduction, f.order(t, "1").PrintJobStatus)
}

func TestRefreshProductPrintCost_WithoutFilesStoresErrors(t *testing.T) {
	f := newFixture(t, fulfillment.Config{})

	product, err := f.svc.RefreshProductPrintCost(context.Background(), "draft", true)
	require.NoError(t, err)
	assert.False(t, product.HasPrintCost())
	assert.Contains(t, product.Errors, "line_items")
}
