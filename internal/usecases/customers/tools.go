// Package customers exposes the Perfex customer endpoints as MCP tools.
package customers

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/tools"
)

// Tool names.
const (
	ListTool   = "list-customers"
	GetTool    = "get-customer"
	CreateTool = "create-customer"
	UpdateTool = "update-customer"
	DeleteTool = "delete-customer"
)

// Service is the subset of the Perfex client the customer tools need.
type Service interface {
	ListCustomers(ctx context.Context) (json.RawMessage, error)
	GetCustomer(ctx context.Context, id int64) (json.RawMessage, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (json.RawMessage, error)
	UpdateCustomer(ctx context.Context, id int64, update domain.CustomerUpdate) (json.RawMessage, error)
	DeleteCustomer(ctx context.Context, id int64) error
}

type toolSet struct {
	svc    Service
	logger *logging.Logger
}

// Register adds the customer tools to reg.
func Register(reg *tools.Registry, svc Service, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	ts := &toolSet{svc: svc, logger: logger.Named("customers")}

	reg.Register(
		tools.NewTool(ListTool, ts.list,
			tools.WithDescription("List all customers from PerfexCRM"),
		),
		tools.NewTool(GetTool, ts.get,
			tools.WithDescription("Get a specific customer by ID"),
			tools.WithInput(idField("ID of the customer to retrieve")),
		),
		tools.NewTool(CreateTool, ts.create,
			tools.WithDescription("Create a new customer in PerfexCRM"),
			tools.WithInput(
				tools.WithObject("customer",
					tools.Description("Customer details"),
					tools.Required(),
					tools.Fields(customerFields(true)...),
				),
			),
		),
		tools.NewTool(UpdateTool, ts.update,
			tools.WithDescription("Update an existing customer"),
			tools.WithInput(
				idField("ID of the customer to update"),
				tools.WithObject("customer",
					tools.Description("Fields to change"),
					tools.Required(),
					tools.Fields(customerFields(false)...),
				),
			),
		),
		tools.NewTool(DeleteTool, ts.delete,
			tools.WithDescription("Delete a customer by ID"),
			tools.WithInput(idField("ID of the customer to delete")),
		),
	)
}

func idField(description string) tools.FieldOption {
	return tools.WithNumber("id", tools.Description(description), tools.Required())
}

// customerFields describes a customer record. Creation requires the core
// columns; updates accept any subset.
func customerFields(required bool) []tools.FieldOption {
	opts := func(description string) []tools.PropertyOption {
		if required {
			return []tools.PropertyOption{tools.Description(description), tools.Required()}
		}
		return []tools.PropertyOption{tools.Description(description)}
	}
	return []tools.FieldOption{
		tools.WithString("company", opts("Company name")...),
		tools.WithString("vat", opts("VAT number")...),
		tools.WithString("phonenumber", opts("Phone number")...),
		tools.WithNumber("country", opts("Country ID")...),
		tools.WithString("city", opts("City")...),
		tools.WithString("zip", opts("ZIP or postal code")...),
		tools.WithString("state", opts("State or region")...),
		tools.WithString("address", opts("Street address")...),
		tools.WithString("email", opts("Contact email")...),
		tools.WithObject("custom_fields", tools.Description("Custom field values keyed by field slug")),
	}
}

func (ts *toolSet) list(ctx context.Context, _ tools.Arguments) domain.ToolResult {
	data, err := ts.svc.ListCustomers(ctx)
	if err != nil {
		ts.logFailure("Listing customers failed", logging.Fields{}, err)
		return domain.ErrorResult("Error listing customers: %v", err)
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return domain.TextResult("[]")
	}
	return rawResult(data)
}

func (ts *toolSet) get(ctx context.Context, args tools.Arguments) domain.ToolResult {
	id, err := args.ID("id")
	if err != nil {
		return domain.ErrorResult("Error getting customer: %v", err)
	}

	data, err := ts.svc.GetCustomer(ctx, id)
	if err != nil {
		ts.logFailure("Getting customer failed", logging.Fields{"customer_id": id}, err)
		return domain.ErrorResult("Error getting customer %d: %v", id, err)
	}
	return rawResult(data)
}

func (ts *toolSet) create(ctx context.Context, args tools.Arguments) domain.ToolResult {
	var customer domain.Customer
	if err := args.Decode("customer", &customer); err != nil {
		return domain.ErrorResult("Error creating customer: %v", err)
	}

	data, err := ts.svc.CreateCustomer(ctx, customer)
	if err != nil {
		ts.logFailure("Creating customer failed", logging.Fields{"company": customer.Company}, err)
		return domain.ErrorResult("Error creating customer: %v", err)
	}
	ts.logger.Info("Customer created", logging.Fields{"company": customer.Company})
	return rawResult(data)
}

func (ts *toolSet) update(ctx context.Context, args tools.Arguments) domain.ToolResult {
	id, err := args.ID("id")
	if err != nil {
		return domain.ErrorResult("Error updating customer: %v", err)
	}
	var update domain.CustomerUpdate
	if err := args.Decode("customer", &update); err != nil {
		return domain.ErrorResult("Error updating customer %d: %v", id, err)
	}

	data, err := ts.svc.UpdateCustomer(ctx, id, update)
	if err != nil {
		ts.logFailure("Updating customer failed", logging.Fields{"customer_id": id}, err)
		return domain.ErrorResult("Error updating customer %d: %v", id, err)
	}
	return rawResult(data)
}

func (ts *toolSet) delete(ctx context.Context, args tools.Arguments) domain.ToolResult {
	id, err := args.ID("id")
	if err != nil {
		return domain.ErrorResult("Error deleting customer: %v", err)
	}

	if err := ts.svc.DeleteCustomer(ctx, id); err != nil {
		ts.logFailure("Deleting customer failed", logging.Fields{"customer_id": id}, err)
		return domain.ErrorResult("Error deleting customer %d: %v", id, err)
	}
	ts.logger.Info("Customer deleted", logging.Fields{"customer_id": id})
	return domain.TextResult(fmt.Sprintf("Customer %d deleted successfully", id))
}

// logFailure logs a failed remote call. Rejections caused by the request
// itself are warnings; everything else is an error.
func (ts *toolSet) logFailure(msg string, fields logging.Fields, err error) {
	fields["error"] = err
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		ts.logger.Warn(msg, fields)
	case errors.Is(err, domain.ErrUnauthorized):
		fields["hint"] = "check PERFEX_API_KEY"
		ts.logger.Error(msg, fields)
	case errors.Is(err, domain.ErrInternal):
		fields["remote"] = "perfex server error"
		ts.logger.Error(msg, fields)
	default:
		ts.logger.Error(msg, fields)
	}
}

// rawResult renders a Perfex response body. JSON is re-indented without
// being decoded, so columns and nulls come through as the CRM sent them.
// Bodies that are not JSON are returned as text.
func rawResult(data json.RawMessage) domain.ToolResult {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return domain.TextResult(string(data))
	}
	return domain.TextResult(out.String())
}
