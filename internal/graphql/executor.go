package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/graphql/model"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
)

//go:embed schema.graphqls
var schemaSDL string

type fieldResolver func(ctx context.Context, args map[string]any) (any, error)

// Executor validates GraphQL documents against the schema and resolves their
// root fields with a Resolver.
type Executor struct {
	schema   *ast.Schema
	resolver *Resolver
	query    map[string]fieldResolver
	mutation map[string]fieldResolver
}

// NewExecutor loads the schema and binds its root fields to r.
func NewExecutor(r *Resolver) (*Executor, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})
	if err != nil {
		return nil, fmt.Errorf("load graphql schema: %w", err)
	}

	q, m := r.Query(), r.Mutation()
	e := &Executor{schema: schema, resolver: r}

	e.query = map[string]fieldResolver{
		"health": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Health(ctx)
		},
		"order": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Order(ctx, stringArg(args, "id"))
		},
		"trackingInfo": func(ctx context.Context, args map[string]any) (any, error) {
			return q.TrackingInfo(ctx, stringArg(args, "orderId"))
		},
		"costQuote": func(ctx context.Context, args map[string]any) (any, error) {
			var input model.PackageInput
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return q.CostQuote(ctx, input)
		},
		"orderQuote": func(ctx context.Context, args map[string]any) (any, error) {
			return q.OrderQuote(ctx, stringArg(args, "orderId"))
		},
		"shippingRate": func(ctx context.Context, args map[string]any) (any, error) {
			var input model.ShippingRateInput
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return q.ShippingRate(ctx, input)
		},
		"statusLabel": func(ctx context.Context, args map[string]any) (any, error) {
			return q.StatusLabel(ctx, optionalStringArg(args, "status"))
		},
		"statusDescription": func(ctx context.Context, args map[string]any) (any, error) {
			return q.StatusDescription(ctx, optionalStringArg(args, "status"))
		},
		"printJobStatuses": func(ctx context.Context, args map[string]any) (any, error) {
			return q.PrintJobStatuses(ctx)
		},
	}

	e.mutation = map[string]fieldResolver{
		"submitPrintJob": func(ctx context.Context, args map[string]any) (any, error) {
			return m.SubmitPrintJob(ctx, stringArg(args, "orderId"))
		},
		"checkPrintJobStatus": func(ctx context.Context, args map[string]any) (any, error) {
			return m.CheckPrintJobStatus(ctx, stringArg(args, "orderId"))
		},
		"refreshProductPrintCost": func(ctx context.Context, args map[string]any) (any, error) {
			force, _ := args["force"].(bool)
			return m.RefreshProductPrintCost(ctx, stringArg(args, "productId"), &force)
		},
		"sweepPrintJobs": func(ctx context.Context, args map[string]any) (any, error) {
			return m.SweepPrintJobs(ctx)
		},
		"updatePrinterCredentials": func(ctx context.Context, args map[string]any) (any, error) {
			var input model.CredentialsInput
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return m.UpdatePrinterCredentials(ctx, input)
		},
	}

	return e, nil
}

// Execute runs one operation. Document and variable errors produce a
// response without data; resolver errors null their field only.
func (e *Executor) Execute(ctx context.Context, params *gql.RawParams) *gql.Response {
	doc, errs := gqlparser.LoadQuery(e.schema, params.Query)
	if len(errs) > 0 {
		return &gql.Response{Errors: errs}
	}

	op := doc.Operations.ForName(params.OperationName)
	if op == nil {
		return errorResponse(gqlerror.Errorf("operation %q not found", params.OperationName))
	}

	vars, err := validator.VariableValues(e.schema, op, params.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if !errors.As(err, &gqlErr) {
			gqlErr = gqlerror.Errorf("%s", err)
		}
		return errorResponse(gqlErr)
	}

	var resolvers map[string]fieldResolver
	var typeName string
	switch op.Operation {
	case ast.Query:
		resolvers, typeName = e.query, "Query"
	case ast.Mutation:
		resolvers, typeName = e.mutation, "Mutation"
	default:
		return errorResponse(gqlerror.Errorf("%s operations are not supported", op.Operation))
	}

	data := make(map[string]any)
	var fieldErrs gqlerror.List
	for _, field := range collectFields(op.SelectionSet) {
		key := field.Alias
		if field.Name == "__typename" {
			data[key] = typeName
			continue
		}

		resolve, ok := resolvers[field.Name]
		if !ok {
			data[key] = nil
			fieldErrs = append(fieldErrs, fieldError(key, "field is not supported", "NOT_SUPPORTED"))
			continue
		}

		value, err := e.resolve(ctx, resolve, field.ArgumentMap(vars))
		if err == nil {
			value, err = project(value, field.SelectionSet)
		}
		if err != nil {
			data[key] = nil
			fieldErrs = append(fieldErrs, fieldError(key, err.Error(), errorCode(err)))
			continue
		}
		data[key] = value
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse(gqlerror.Errorf("encode response: %s", err))
	}
	return &gql.Response{Data: raw, Errors: fieldErrs}
}

func (e *Executor) resolve(ctx context.Context, fn fieldResolver, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.resolver.Logger.Ctx(ctx).Error("GraphQL resolver panicked", zap.Any("panic", r))
			err = errors.New("internal server error")
		}
	}()
	return fn(ctx, args)
}

// collectFields flattens fragments into the fields they select.
func collectFields(set ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				fields = append(fields, collectFields(s.Definition.SelectionSet)...)
			}
		}
	}
	return fields
}

// project reduces a resolved value to the selected fields.
func project(value any, set ast.SelectionSet) (any, error) {
	if len(set) == 0 {
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return shape(generic, set), nil
}

func shape(value any, set ast.SelectionSet) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = shape(item, set)
		}
		return out
	case map[string]any:
		out := make(map[string]any)
		for _, f := range collectFields(set) {
			if f.Name == "__typename" {
				if f.ObjectDefinition != nil {
					out[f.Alias] = f.ObjectDefinition.Name
				}
				continue
			}
			out[f.Alias] = shape(v[f.Name], f.SelectionSet)
		}
		return out
	default:
		return v
	}
}

func decodeArg(args map[string]any, name string, out any) error {
	raw, err := json.Marshal(args[name])
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	switch v := args[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func optionalStringArg(args map[string]any, name string) *string {
	if args[name] == nil {
		return nil
	}
	s := stringArg(args, name)
	return &s
}

func fieldError(key, message, code string) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    message,
		Path:       ast.Path{ast.PathName(key)},
		Extensions: map[string]any{"code": code},
	}
}

func errorResponse(err *gqlerror.Error) *gql.Response {
	return &gql.Response{Errors: gqlerror.List{err}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, fulfillment.ErrNoPrintJob),
		errors.Is(err, fulfillment.ErrNotPrintBook),
		errors.Is(err, fulfillment.ErrOrderNotPaid):
		return "BAD_REQUEST"
	}
	kind := printer.Kind(err)
	if kind == "internal" {
		return "INTERNAL"
	}
	return "PRINTER_" + strings.ToUpper(kind)
}
