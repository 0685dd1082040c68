// Package domain defines the core entities shared by the gateway layers.
package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

// ContentTypeText is the only content kind the gateway produces.
const ContentTypeText = "text"

// Content is a single block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the uniform envelope returned by every tool invocation,
// whether it succeeded or not.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a successful single-block result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// ErrorResult builds a failed single-block result.
func ErrorResult(format string, args ...interface{}) ToolResult {
	return ToolResult{
		Content: []Content{{Type: ContentTypeText, Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// Text joins the text of every block. Mostly useful in logs and tests.
func (r ToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// FlexInt is an integer that also accepts numeric strings when decoding.
// Perfex returns most numeric columns as strings.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil || v == "" {
		*f = 0
		return nil
	}
	if n, ok := v.(float64); ok && n != math.Trunc(n) {
		return fmt.Errorf("%v is not an integer", n)
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", string(data), err)
	}
	*f = FlexInt(n)
	return nil
}

// CustomFields holds the remote system's custom field values. Their shape is
// owned by the CRM, so they are passed through untouched.
type CustomFields map[string]interface{}

// Customer is the body sent to Perfex when creating a customer. Records read
// back from Perfex are passed through as raw JSON instead.
type Customer struct {
	Company      string       `json:"company"`
	VAT          string       `json:"vat"`
	PhoneNumber  string       `json:"phonenumber"`
	Country      FlexInt      `json:"country"`
	City         string       `json:"city"`
	Zip          string       `json:"zip"`
	State        string       `json:"state"`
	Address      string       `json:"address"`
	Email        string       `json:"email"`
	CustomFields CustomFields `json:"custom_fields,omitempty"`
}

// CustomerUpdate is a partial customer. Nil fields are left out of the
// request body so the remote record keeps its current values.
type CustomerUpdate struct {
	Company      *string      `json:"company,omitempty"`
	VAT          *string      `json:"vat,omitempty"`
	PhoneNumber  *string      `json:"phonenumber,omitempty"`
	Country      *FlexInt     `json:"country,omitempty"`
	City         *string      `json:"city,omitempty"`
	Zip          *string      `json:"zip,omitempty"`
	State        *string      `json:"state,omitempty"`
	Address      *string      `json:"address,omitempty"`
	Email        *string      `json:"email,omitempty"`
	CustomFields CustomFields `json:"custom_fields,omitempty"`
}
