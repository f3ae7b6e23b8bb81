package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

const orderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "status", "items"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "status": { "enum": ["pending", "processing", "on-hold", "completed", "cancelled", "refunded", "failed"] },
    "email": { "type": "string" },
    "billing": { "type": "object" },
    "shipping": { "type": "object" },
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "quantity"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "product_id": { "type": "string" },
          "name": { "type": "string" },
          "quantity": { "type": "integer", "minimum": 1 }
        }
      }
    }
  }
}`

const productSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "type"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "type": { "enum": ["print_book", "simple"] },
    "pod_package": { "type": "object" },
    "page_count": { "type": "integer", "minimum": 0 },
    "cover_pdf_url": { "type": "string" },
    "interior_pdf_url": { "type": "string" }
  }
}`

type webhookValidator struct {
	order   *gojsonschema.Schema
	product *gojsonschema.Schema
}

func newWebhookValidator() (*webhookValidator, error) {
	order, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(orderSchema))
	if err != nil {
		return nil, fmt.Errorf("order webhook schema: %w", err)
	}
	product, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(productSchema))
	if err != nil {
		return nil, fmt.Errorf("product webhook schema: %w", err)
	}
	return &webhookValidator{order: order, product: product}, nil
}

func validateBody(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

// authenticate requires an HS256 bearer token signed with the webhook secret.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing bearer token"))
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable body"))
		return false
	}
	if err := validateBody(schema, body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

type orderWebhookResponse struct {
	OrderID    string `json:"order_id"`
	PrintJobID string `json:"print_job_id,omitempty"`
}

func (s *Server) handleOrderWebhook(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if !s.readBody(w, r, s.webhooks.order, &order) {
		return
	}

	created, err := s.service.SyncOrder(r.Context(), &order)
	if err != nil {
		s.logger.Ctx(r.Context()).Error("Order webhook failed", zap.String("order_id", order.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("order could not be stored"))
		return
	}

	resp := orderWebhookResponse{OrderID: order.ID}
	if created != nil {
		resp.PrintJobID = created.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type productWebhookResponse struct {
	ProductID        string         `json:"product_id"`
	PrintCostExclTax *string        `json:"print_cost_excl_tax"`
	PrintCostInclTax *string        `json:"print_cost_incl_tax"`
	Errors           printer.Errors `json:"errors,omitempty"`
}

func (s *Server) handleProductWebhook(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !s.readBody(w, r, s.webhooks.product, &product) {
		return
	}

	saved, err := s.service.SyncProduct(r.Context(), &product)
	if err != nil {
		s.logger.Ctx(r.Context()).Error("Product webhook failed", zap.String("product_id", product.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("product could not be stored"))
		return
	}

	resp := productWebhookResponse{ProductID: saved.ID, Errors: saved.Errors}
	if saved.PrintCostExclTax.Valid {
		v := saved.PrintCostExclTax.Decimal.StringFixed(2)
		resp.PrintCostExclTax = &v
	}
	if saved.PrintCostInclTax.Valid {
		v := saved.PrintCostInclTax.Decimal.StringFixed(2)
		resp.PrintCostInclTax = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusCheckResponse struct {
	OrderID  string               `json:"order_id"`
	Status   printer.JobStatus    `json:"status"`
	Label    string               `json:"label"`
	Changed  bool                 `json:"changed"`
	Tracking printer.TrackingInfo `json:"tracking_information,omitempty"`
}

func (s *Server) handleStatusCheckWebhook(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	check, err := s.service.CheckStatus(r.Context(), orderID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("order not found"))
		return
	case errors.Is(err, fulfillment.ErrNoPrintJob):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	case err != nil:
		s.logger.Ctx(r.Context()).Warn("Status check failed", zap.String("order_id", orderID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, statusCheckResponse{
		OrderID:  check.OrderID,
		Status:   check.Current,
		Label:    fulfillment.StatusLabel(check.Current),
		Changed:  check.Changed,
		Tracking: check.Tracking,
	})
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
