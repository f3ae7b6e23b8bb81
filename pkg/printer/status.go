package printer

// JobStatus is a print job status name as reported by the Printer.
// Values are stored verbatim; Normalize maps unrecognized names to StatusUnknown.
type JobStatus string

const (
	StatusCreated           JobStatus = "CREATED"
	StatusRejected          JobStatus = "REJECTED"
	StatusUnpaid            JobStatus = "UNPAID"
	StatusPaymentInProgress JobStatus = "PAYMENT_IN_PROGRESS"
	StatusProductionDelayed JobStatus = "PRODUCTION_DELAYED"
	StatusProductionReady   JobStatus = "PRODUCTION_READY"
	StatusInProduction      JobStatus = "IN_PRODUCTION"
	StatusShipped           JobStatus = "SHIPPED"
	StatusError             JobStatus = "ERROR"
	StatusCanceled          JobStatus = "CANCELED"
	StatusUnknown           JobStatus = "UNKNOWN"
)

// Statuses returns the documented statuses in lifecycle order.
func Statuses() []JobStatus {
	return []JobStatus{
		StatusCreated, StatusRejected, StatusUnpaid, StatusPaymentInProgress,
		StatusProductionDelayed, StatusProductionReady, StatusInProduction,
		StatusShipped, StatusError, StatusCanceled, StatusUnknown,
	}
}

type statusText struct {
	label       string
	description string
}

var statusTexts = map[JobStatus]statusText{
	StatusCreated:           {"Created", "Print-Job created."},
	StatusRejected:          {"Rejected", "Print-Job rejected before production could begin."},
	StatusUnpaid:            {"Unpaid", "Print-Job can be paid."},
	StatusPaymentInProgress: {"Payment In Progress", "Payment is in progress."},
	StatusProductionDelayed: {"Production Delayed", "Print-Job is paid and will move to production after the mandatory production delay."},
	StatusProductionReady:   {"Production Ready", "Production delay has ended and the Print-Job will move to \"in production\" shortly."},
	StatusInProduction:      {"In Production", "Print-Job submitted to printer."},
	StatusShipped:           {"Shipped", "Print-Job is fully shipped."},
	StatusError:             {"Error", "Error encountered during print-job production."},
	StatusCanceled:          {"Canceled", "Print-Job canceled prior to production."},
	StatusUnknown:           {"Unknown", "Print-Job status is unknown."},
}

// Known reports whether s is one of the documented statuses.
func (s JobStatus) Known() bool {
	_, ok := statusTexts[s]
	return ok && s != StatusUnknown
}

// Normalize returns s if it is a documented status and StatusUnknown otherwise.
// The empty status stays empty: it means no print job exists.
func (s JobStatus) Normalize() JobStatus {
	if s == "" || s.Known() {
		return s
	}
	return StatusUnknown
}

// Label returns a customer-facing name for the status.
func (s JobStatus) Label() string {
	if s == "" {
		return "N/A"
	}
	return statusTexts[s.Normalize()].label
}

// Description returns a customer-facing explanation of the status.
func (s JobStatus) Description() string {
	if s == "" {
		return "No Print-Job"
	}
	return statusTexts[s.Normalize()].description
}
