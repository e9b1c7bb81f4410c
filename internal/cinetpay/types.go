package cinetpay

import (
    "encoding/json"
    "errors"
    "strings"

    "github.com/shopspring/decimal"
)

var (
    // ErrProviderUnavailable covers transport failures, non-2xx answers and bodies that
    // cannot be decoded. Callers may retry.
    ErrProviderUnavailable = errors.New("payment provider unavailable")
    // ErrProviderRejected means the provider answered and refused the request.
    ErrProviderRejected = errors.New("payment provider rejected request")
)

const (
    ResultSuccess  = "00"
    StatusAccepted = "ACCEPTED"
    StatusRefused  = "REFUSED"
    StatusCanceled = "CANCELLED"

    codeCheckoutCreated = "201"
)

type CheckoutRequest struct {
    TransactionID string
    Amount        decimal.Decimal
    Currency      string
    Description   string
    CustomerName  string
    ReturnURL     string
    NotifyURL     string
    Metadata      map[string]string
}

type Checkout struct {
    PaymentURL   string
    PaymentToken string
}

// PaymentStatus is the provider's own view of a transaction.
type PaymentStatus struct {
    TransactionID string
    ResultCode    string
    TransStatus   string
    Amount        decimal.Decimal
    Currency      string
    PaymentID     string
    PaymentMethod string
    PayerPhone    string
    ErrorMessage  string
}

// Successful requires both the API result code and the payment status. Either one alone
// is not enough.
func (s PaymentStatus) Successful() bool {
    return s.ResultCode == ResultSuccess && s.TransStatus == StatusAccepted
}

func (s PaymentStatus) Refused() bool {
    return s.TransStatus == StatusRefused || s.TransStatus == StatusCanceled
}

type checkoutPayload struct {
    APIKey          string `json:"apikey"`
    SiteID          any    `json:"site_id"`
    TransactionID   string `json:"transaction_id"`
    Amount          any    `json:"amount"`
    Currency        string `json:"currency"`
    Description     string `json:"description"`
    CustomerName    string `json:"customer_name"`
    CustomerSurname string `json:"customer_surname"`
    NotifyURL       string `json:"notify_url"`
    ReturnURL       string `json:"return_url"`
    Channels        string `json:"channels"`
    Metadata        string `json:"metadata,omitempty"`
}

type checkoutResponse struct {
    Code        string `json:"code"`
    Message     string `json:"message"`
    Description string `json:"description"`
    Data        struct {
        PaymentToken string `json:"payment_token"`
        PaymentURL   string `json:"payment_url"`
    } `json:"data"`
}

type statusData struct {
    TransID      string          `json:"cpm_trans_id"`
    Amount       json.RawMessage `json:"cpm_amount"`
    Currency     string          `json:"cpm_currency"`
    PayID        string          `json:"cpm_payid"`
    Result       string          `json:"cpm_result"`
    TransStatus  string          `json:"cpm_trans_status"`
    ErrorMessage string          `json:"cpm_error_message"`
    Method       string          `json:"payment_method"`
    PhonePrefix  string          `json:"cpm_phone_prefixe"`
    Phone        string          `json:"cel_phone_num"`
}

// amount accepts the provider's amount as a JSON number or string. Empty values read
// as zero.
func (d statusData) amount() (decimal.Decimal, error) {
    raw := strings.Trim(strings.TrimSpace(string(d.Amount)), `"`)
    if raw == "" || raw == "null" {
        return decimal.Zero, nil
    }
    return decimal.NewFromString(raw)
}
