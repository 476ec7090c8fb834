package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "openai"

// Errors returned by the LLM extractor
var (
	ErrMissingAPIKey  = errors.New("extraction: openai api key is required")
	ErrEmptyResponse  = errors.New("extraction: empty completion")
	ErrInvalidPayload = errors.New("extraction: completion is not valid JSON")
)

const invoicePrompt = `You are an AI assistant that extracts information from financial documents for a production company / digital creative studio. Extract the following details from the text:
Invoice Date (formatted as YYYY-MM-DD), Quantity (consider multipliers like days, weeks, hours, x, X and any other units that may have separate columns to quantity but need to be considered for the total), Rate, Date (format as YYYY-MM-DD, leave empty when no date is found), Item Description (summarize to 30 characters maximum, only include roles or item names, exclude project names or other fluff), Account Number (5300 is US Labor, 5000 is Cost of Goods Sold, 5330 is Foreign Contractor).
Invoice Description (use all of the line items to describe the vendor, like Location Rental, Gaffer, Director of Photography, Rental House; use concise descriptions common in the creative industry).
Some invoices have a separate line for tax: quantity is 1, description is Tax, rate is the tax amount. Add it as another line. Some invoices have a separate line for discount: quantity is 1, description is Discount, rate is the discount amount in dollars (when only a percentage is given, work out the dollar amount). Add it as another line.
Respond with pure, parsable JSON with keys: 'invoice_date', 'due_date', 'description' and 'line_items' (an array of objects with 'quantity', 'rate', 'date', 'item_description' and 'account_number'). The total of all line items (quantity * rate) must match the invoice total. Omit empty fields.`

const receiptPrompt = `You are an AI assistant that extracts information from receipts.
Extract the following details from the text:
Total Amount (numbers only, no symbols),
Date of purchase (format YYYY-MM-DD), and
a description (summarize to 20 characters maximum).
If the total is a refund the value must be negative.
Provide the information in JSON format with keys: 'total_amount', 'description', 'date'.`

// Amount is a decimal that decodes from JSON numbers and from strings like "$1,200.00"
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		a.Decimal = decimal.Zero
		return nil
	}
	raw = strings.Trim(raw, `"`)
	d, err := ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	a.Decimal = d
	return nil
}

// Code is a string that also decodes from a JSON number
type Code string

// UnmarshalJSON accepts strings, numbers and null
func (c *Code) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Code(strings.TrimSpace(s))
		return nil
	}
	*c = Code(raw)
	return nil
}

// InvoiceLine is one extracted invoice line
type InvoiceLine struct {
	Quantity        Amount `json:"quantity"`
	Rate            Amount `json:"rate"`
	Date            string `json:"date"`
	ItemDescription string `json:"item_description"`
	AccountNumber   Code   `json:"account_number"`
}

// InvoiceData is the structured content of an invoice
type InvoiceData struct {
	InvoiceDate string        `json:"invoice_date"`
	DueDate     string        `json:"due_date"`
	Description string        `json:"description"`
	LineItems   []InvoiceLine `json:"line_items" validate:"required,min=1"`
}

// ReceiptData is the structured content of a card receipt
type ReceiptData struct {
	TotalAmount Amount `json:"total_amount"`
	Description string `json:"description" validate:"max=255"`
	Date        string `json:"date"`
}

// ParseDate parses a YYYY-MM-DD date; ok is false for empty or malformed input
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OpenAIExtractor extracts invoice and receipt data with a chat completion model
type OpenAIExtractor struct {
	client    *openai.Client
	model     string
	maxTokens int
	validate  *validator.Validate
	logger    *zap.Logger
	metrics   *telemetry.PipelineMetrics
}

// NewOpenAIExtractor creates an extractor from the openai config section
func NewOpenAIExtractor(cfg config.OpenAIConfig, logger *zap.Logger) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &OpenAIExtractor{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: maxTokens,
		validate:  validator.New(),
		logger:    logger.With(zap.String("component", "openai")),
	}, nil
}

// SetMetrics records completion latency
func (x *OpenAIExtractor) SetMetrics(m *telemetry.PipelineMetrics) {
	x.metrics = m
}

// ExtractInvoice extracts invoice dates, description and line items from text
func (x *OpenAIExtractor) ExtractInvoice(ctx context.Context, text string) (*InvoiceData, error) {
	var data InvoiceData
	if err := x.complete(ctx, "extract_invoice", invoicePrompt, text, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ExtractReceipt extracts total, description and purchase date from receipt text
func (x *OpenAIExtractor) ExtractReceipt(ctx context.Context, text string) (*ReceiptData, error) {
	var data ReceiptData
	if err := x.complete(ctx, "extract_receipt", receiptPrompt, text, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (x *OpenAIExtractor) complete(ctx context.Context, operation, system, text string, out any) error {
	ctx, span := telemetry.StartClientSpan(ctx, serviceName, operation)
	defer span.End()
	start := time.Now()

	resp, err := x.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: x.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: x.maxTokens,
		// zero is dropped by omitempty and would mean the API default
		Temperature: math.SmallestNonzeroFloat32,
	})
	x.metrics.RecordAPICall(ctx, serviceName, operation, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("openai %s: %w", operation, err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}
	content := StripCodeFence(resp.Choices[0].Message.Content)
	if content == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		x.logger.Error("Failed to parse completion", zap.String("operation", operation), zap.String("content", content), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := x.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// StripCodeFence removes a surrounding ```json fence from a completion
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
