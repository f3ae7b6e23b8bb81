package lulu

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tournevent/printbridge/pkg/printer"
)

// Placeholders for address fields Lulu requires but a quote cannot know.
const (
	placeholderStreet = "x"
	placeholderPhone  = "1111111111"
)

// BuildCostCalculation converts a package into a cost calculation request.
// Items missing a pod package id or either file URL are dropped; if none
// remain the result is printer.ErrNothingToSubmit.
func BuildCostCalculation(pkg *printer.Package) (*CostCalculationRequest, error) {
	if pkg == nil {
		return nil, printer.ErrNothingToSubmit
	}

	items := make([]CostLineItem, 0, len(pkg.LineItems))
	for _, li := range pkg.LineItems {
		if !li.Printable() {
			continue
		}
		items = append(items, CostLineItem{
			PageCount:    li.PageCount,
			PodPackageID: li.PodPackageID,
			Quantity:     li.Quantity,
		})
	}
	if len(items) == 0 {
		return nil, printer.ErrNothingToSubmit
	}

	addr := convertAddress(pkg.Destination)
	if addr.PhoneNumber == "" {
		addr.PhoneNumber = placeholderPhone
	}

	return &CostCalculationRequest{
		LineItems:       items,
		ShippingAddress: addr,
		ShippingLevel:   string(printer.ShippingMail),
	}, nil
}

// BuildPrintJob converts a print job into a creation request. Items missing a
// pod package id or either file URL are dropped; a job left without items is
// never built.
func BuildPrintJob(job *printer.PrintJob) (*PrintJobRequest, error) {
	if job == nil {
		return nil, printer.ErrNothingToSubmit
	}

	items := make([]PrintJobLineItem, 0, len(job.LineItems))
	for _, li := range job.LineItems {
		if !li.Printable() {
			continue
		}
		items = append(items, PrintJobLineItem{
			ExternalID: li.ExternalID,
			Quantity:   li.Quantity,
			Title:      li.Title,
			PrintableNormalization: PrintableNormalization{
				Cover:        SourceFile{SourceURL: li.CoverURL},
				Interior:     SourceFile{SourceURL: li.InteriorURL},
				PodPackageID: li.PodPackageID,
			},
		})
	}
	if len(items) == 0 {
		return nil, printer.ErrNothingToSubmit
	}

	level := job.ShippingLevel
	if level == "" {
		level = printer.ShippingMail
	}
	delay := job.ProductionDelay
	if delay <= 0 {
		delay = printer.DefaultProductionDelay
	}

	return &PrintJobRequest{
		ContactEmail:    job.ContactEmail,
		ExternalID:      job.ExternalID,
		LineItems:       items,
		ProductionDelay: delay,
		ShippingAddress: convertAddress(job.ShippingAddress),
		ShippingLevel:   string(level),
	}, nil
}

// StatusPath returns the status endpoint path of a print job.
func StatusPath(printJobID string) string {
	return strings.Replace(pathPrintJobStatusTmpl, "{id}", url.PathEscape(printJobID), 1)
}

func convertAddress(a printer.ShippingAddress) Address {
	street1 := a.Street1
	if strings.TrimSpace(street1) == "" {
		street1 = placeholderStreet
	}
	return Address{
		Name:        a.Name,
		City:        a.City,
		CountryCode: a.CountryCode,
		StateCode:   a.StateCode,
		Postcode:    a.Postcode,
		Street1:     street1,
		Street2:     a.Street2,
		PhoneNumber: a.Phone,
	}
}

func describeRequest(req *CostCalculationRequest) string {
	ids := make([]string, len(req.LineItems))
	for i, li := range req.LineItems {
		ids[i] = fmt.Sprintf("%s x%d", li.PodPackageID, li.Quantity)
	}
	return strings.Join(ids, ", ")
}
