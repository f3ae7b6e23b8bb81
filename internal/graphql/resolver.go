package graphql

import (
	"context"
	"errors"

	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/graphql/model"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Resolver is the root resolver for the GraphQL schema.
// It holds dependencies needed by all resolvers.
type Resolver struct {
	Service *fulfillment.Service
	Logger  *otelzap.Logger
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(service *fulfillment.Service, logger *otelzap.Logger) *Resolver {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	return &Resolver{
		Service: service,
		Logger:  logger,
	}
}

// Query returns the query resolver.
func (r *Resolver) Query() *QueryResolver { return &QueryResolver{r} }

// Mutation returns the mutation resolver.
func (r *Resolver) Mutation() *MutationResolver { return &MutationResolver{r} }

// QueryResolver resolves the fields of Query.
type QueryResolver struct{ *Resolver }

// MutationResolver resolves the fields of Mutation.
type MutationResolver struct{ *Resolver }

func (r *QueryResolver) Health(ctx context.Context) (string, error) {
	return "ok", nil
}

func (r *QueryResolver) Order(ctx context.Context, id string) (*model.Order, error) {
	order, err := r.Service.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	notes, err := r.Service.Notes(ctx, id)
	if err != nil {
		return nil, err
	}
	return orderToGraphQL(order, notes), nil
}

func (r *QueryResolver) TrackingInfo(ctx context.Context, orderID string) ([]*model.Tracking, error) {
	info, err := r.Service.GetTrackingInfo(ctx, orderID)
	if err != nil || info == nil {
		return nil, err
	}
	return trackingToGraphQL(info), nil
}

func (r *QueryResolver) CostQuote(ctx context.Context, input model.PackageInput) (*model.CostQuote, error) {
	result := r.Service.GetCostQuote(ctx, packageInputToModel(&input))
	return costQuoteToGraphQL(result), nil
}

func (r *QueryResolver) OrderQuote(ctx context.Context, orderID string) (*model.CostQuote, error) {
	result, err := r.Service.QuoteOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return costQuoteToGraphQL(result), nil
}

func (r *QueryResolver) ShippingRate(ctx context.Context, input model.ShippingRateInput) (*model.ShippingRate, error) {
	rate, err := r.Service.ShippingRate(ctx, cartItemsToModel(input.Items), addressInputToModel(input.Destination))
	if err != nil {
		return nil, err
	}
	return shippingRateToGraphQL(rate), nil
}

func (r *QueryResolver) StatusLabel(ctx context.Context, status *string) (string, error) {
	return fulfillment.StatusLabel(jobStatus(status)), nil
}

func (r *QueryResolver) StatusDescription(ctx context.Context, status *string) (string, error) {
	return fulfillment.StatusDescription(jobStatus(status)), nil
}

func (r *QueryResolver) PrintJobStatuses(ctx context.Context) ([]*model.PrintJobStatusInfo, error) {
	return statusInfoToGraphQL(printer.Statuses()), nil
}

func (r *MutationResolver) SubmitPrintJob(ctx context.Context, orderID string) (*model.SubmitResult, error) {
	created, err := r.Service.SubmitJob(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		r.Logger.Ctx(ctx).Warn("Manual print job submission failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return &model.SubmitResult{Errors: errorsToGraphQL(failureErrors(err))}, nil
	}
	return &model.SubmitResult{
		Submitted:  true,
		PrintJobID: &created.ID,
		Errors:     []*model.FieldError{},
	}, nil
}

func (r *MutationResolver) CheckPrintJobStatus(ctx context.Context, orderID string) (*model.StatusCheck, error) {
	check, err := r.Service.CheckStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return statusCheckToGraphQL(check), nil
}

func (r *MutationResolver) RefreshProductPrintCost(ctx context.Context, productID string, force *bool) (*model.Product, error) {
	product, err := r.Service.RefreshProductPrintCost(ctx, productID, force != nil && *force)
	if err != nil {
		return nil, err
	}
	return productToGraphQL(product), nil
}

func (r *MutationResolver) SweepPrintJobs(ctx context.Context) (*model.SweepReport, error) {
	report, err := r.Service.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return sweepReportToGraphQL(report), nil
}

func (r *MutationResolver) UpdatePrinterCredentials(ctx context.Context, input model.CredentialsInput) (bool, error) {
	if err := r.Service.UpdateCredentials(ctx, credentialsInputToModel(&input)); err != nil {
		return false, err
	}
	return true, nil
}

func jobStatus(s *string) printer.JobStatus {
	if s == nil {
		return ""
	}
	return printer.JobStatus(*s)
}

// failureErrors turns a submission error into a field-keyed error set.
func failureErrors(err error) printer.Errors {
	var apiErr *printer.APIError
	switch {
	case errors.As(err, &apiErr) && len(apiErr.Errors) > 0:
		return apiErr.Errors
	case errors.Is(err, printer.ErrNothingToSubmit):
		return printer.Errors{"line_items": "No line item can be printed"}
	case errors.Is(err, fulfillment.ErrOrderNotPaid):
		return printer.Errors{"order": "Order is not paid"}
	case errors.Is(err, repository.ErrPrintJobExists):
		return printer.Errors{"order": "Order already has a print job"}
	default:
		return printer.Errors{"Error": err.Error()}
	}
}
