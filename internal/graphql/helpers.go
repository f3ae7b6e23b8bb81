package graphql

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/graphql/model"
	"github.com/tournevent/printbridge/pkg/printer"
)

func addressInputToModel(input *model.AddressInput) printer.ShippingAddress {
	if input == nil {
		return printer.ShippingAddress{}
	}
	addr := printer.ShippingAddress{CountryCode: strings.ToUpper(input.CountryCode)}
	if input.Name != nil {
		addr.Name = *input.Name
	}
	if input.Phone != nil {
		addr.Phone = *input.Phone
	}
	if input.StateCode != nil {
		addr.StateCode = *input.StateCode
	}
	if input.City != nil {
		addr.City = *input.City
	}
	if input.Postcode != nil {
		addr.Postcode = *input.Postcode
	}
	if input.Street1 != nil {
		addr.Street1 = *input.Street1
	}
	if input.Street2 != nil {
		addr.Street2 = *input.Street2
	}
	return addr
}

func packageInputToModel(input *model.PackageInput) *printer.Package {
	pkg := &printer.Package{Destination: addressInputToModel(input.Destination)}
	for _, li := range input.LineItems {
		if li == nil {
			continue
		}
		item := printer.LineItem{
			PodPackageID: li.PodPackageID,
			PageCount:    nonNegative(li.PageCount),
			Quantity:     quantity(li.Quantity),
		}
		if li.ExternalID != nil {
			item.ExternalID = *li.ExternalID
		}
		if li.CoverURL != nil {
			item.CoverURL = *li.CoverURL
		}
		if li.InteriorURL != nil {
			item.InteriorURL = *li.InteriorURL
		}
		pkg.LineItems = append(pkg.LineItems, item)
	}
	return pkg
}

func cartItemsToModel(inputs []*model.CartItemInput) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		if in == nil {
			continue
		}
		items = append(items, domain.OrderItem{
			ID:        in.ProductID,
			ProductID: in.ProductID,
			Quantity:  quantity(in.Quantity),
		})
	}
	return items
}

func credentialsInputToModel(input *model.CredentialsInput) printer.Credentials {
	creds := printer.Credentials{Mode: printer.ModeSandbox}
	if input.Mode != nil {
		creds.Mode = printer.ParseMode(*input.Mode)
	}
	if input.SandboxKey != nil {
		creds.SandboxKey = *input.SandboxKey
	}
	if input.ProductionKey != nil {
		creds.ProductionKey = *input.ProductionKey
	}
	return creds
}

func quantity(q *int) uint {
	if q == nil {
		return 1
	}
	return nonNegative(*q)
}

func nonNegative(n int) uint {
	if n < 0 {
		return 0
	}
	return uint(n)
}

func errorsToGraphQL(errs printer.Errors) []*model.FieldError {
	msgs := errs.Messages()
	result := make([]*model.FieldError, 0, len(msgs))
	for _, m := range msgs {
		field, message, _ := strings.Cut(m, ": ")
		result = append(result, &model.FieldError{Field: field, Message: message})
	}
	return result
}

func trackingToGraphQL(info printer.TrackingInfo) []*model.Tracking {
	ids := make([]string, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.Tracking, 0, len(ids))
	for _, id := range ids {
		result = append(result, &model.Tracking{TrackingID: id, URL: info[id]})
	}
	return result
}

func costQuoteToGraphQL(result *printer.CostCalculationResult) *model.CostQuote {
	if !result.Success() {
		return &model.CostQuote{Errors: errorsToGraphQL(result.Errors)}
	}
	c := result.Cost

	cost := &model.CostCalculation{
		LineItemCosts: make([]*model.LineItemCost, 0, len(c.LineItemCosts)),
		ShippingCost: &model.ShippingCost{
			TotalCostExclTax: money(c.ShippingCost.TotalCostExclTax),
			TotalCostInclTax: money(c.ShippingCost.TotalCostInclTax),
			TotalTax:         money(c.ShippingCost.TotalTax),
		},
		Fees:                make([]*model.Fee, 0, len(c.Fees)),
		TotalTax:            money(c.TotalTax),
		TotalCostExclTax:    money(c.TotalCostExclTax),
		TotalCostInclTax:    money(c.TotalCostInclTax),
		TotalDiscountAmount: money(c.TotalDiscountAmount),
		Currency:            c.Currency,
	}
	for _, li := range c.LineItemCosts {
		cost.LineItemCosts = append(cost.LineItemCosts, &model.LineItemCost{
			Quantity:         li.Quantity,
			TotalCostExclTax: money(li.TotalCostExclTax),
			TotalCostInclTax: money(li.TotalCostInclTax),
			UnitTierCost:     money(li.UnitTierCost),
		})
	}
	for _, f := range c.Fees {
		cost.Fees = append(cost.Fees, &model.Fee{
			FeeType:          f.FeeType,
			Sku:              f.SKU,
			TotalCostExclTax: money(f.TotalCostExclTax),
			TotalCostInclTax: money(f.TotalCostInclTax),
		})
	}

	return &model.CostQuote{Success: true, Cost: cost, Errors: []*model.FieldError{}}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orderToGraphQL(o *domain.Order, notes []*domain.OrderNote) *model.Order {
	out := &model.Order{
		ID:                        o.ID,
		Status:                    string(o.Status),
		PrintJobID:                optional(o.PrintJobID),
		PrintJobStatus:            optional(string(o.PrintJobStatus)),
		PrintJobStatusLabel:       fulfillment.StatusLabel(o.PrintJobStatus),
		PrintJobStatusDescription: fulfillment.StatusDescription(o.PrintJobStatus),
		Tracking:                  trackingToGraphQL(o.TrackingInfo),
		Notes:                     make([]*model.OrderNote, 0, len(notes)),
	}
	for _, n := range notes {
		out.Notes = append(out.Notes, &model.OrderNote{
			ID:        n.ID.String(),
			Body:      n.Body,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func productToGraphQL(p *domain.Product) *model.Product {
	return &model.Product{
		ID:               p.ID,
		Name:             p.Name,
		PodPackageID:     p.PodPackageID(),
		PageCount:        int(p.PageCount),
		PrintCostExclTax: nullMoney(p.PrintCostExclTax),
		PrintCostInclTax: nullMoney(p.PrintCostInclTax),
		Errors:           errorsToGraphQL(p.Errors),
	}
}

func statusCheckToGraphQL(c *fulfillment.StatusCheck) *model.StatusCheck {
	return &model.StatusCheck{
		OrderID:    c.OrderID,
		PrintJobID: c.PrintJobID,
		Previous:   optional(string(c.Previous)),
		Current:    string(c.Current),
		Changed:    c.Changed,
		Tracking:   trackingToGraphQL(c.Tracking),
	}
}

func sweepReportToGraphQL(r *fulfillment.SweepReport) *model.SweepReport {
	out := &model.SweepReport{
		Checked:  r.Checked,
		Changed:  r.Changed,
		Failed:   r.Failed,
		Failures: make([]*model.SweepFailure, 0, len(r.Errors)),
	}
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out.Failures = append(out.Failures, &model.SweepFailure{OrderID: id, Message: r.Errors[id].Error()})
	}
	return out
}

func shippingRateToGraphQL(r *fulfillment.ShippingRate) *model.ShippingRate {
	if r == nil {
		return nil
	}
	return &model.ShippingRate{
		ID:       r.ID,
		Package:  r.Package,
		Label:    r.Label,
		Cost:     money(r.Cost),
		Currency: r.Currency,
	}
}

func statusInfoToGraphQL(statuses []printer.JobStatus) []*model.PrintJobStatusInfo {
	result := make([]*model.PrintJobStatusInfo, len(statuses))
	for i, s := range statuses {
		result[i] = &model.PrintJobStatusInfo{
			Status:      string(s),
			Label:       s.Label(),
			Description: s.Description(),
		}
	}
	return result
}
