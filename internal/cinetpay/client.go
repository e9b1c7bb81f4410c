package cinetpay

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"
)

const (
    DefaultCheckoutURL = "https://api-checkout.cinetpay.com/v2/payment"
    DefaultStatusURL   = "https://api.cinetpay.com/v1/?method=checkPayStatus"
    defaultTimeout     = 15 * time.Second
    maxBodySize        = 1 << 20
)

type Config struct {
    APIKey      string
    SiteID      string
    CheckoutURL string
    StatusURL   string
    Channels    string
    Timeout     time.Duration
}

type Client struct {
    apiKey      string
    siteID      string
    checkoutURL string
    statusURL   string
    channels    string
    httpClient  *http.Client
}

func New(cfg Config) *Client {
    if cfg.CheckoutURL == "" {
        cfg.CheckoutURL = DefaultCheckoutURL
    }
    if cfg.StatusURL == "" {
        cfg.StatusURL = DefaultStatusURL
    }
    if cfg.Channels == "" {
        cfg.Channels = "ALL"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = defaultTimeout
    }
    return &Client{
        apiKey:      cfg.APIKey,
        siteID:      cfg.SiteID,
        checkoutURL: cfg.CheckoutURL,
        statusURL:   cfg.StatusURL,
        channels:    cfg.Channels,
        httpClient: &http.Client{
            Timeout: cfg.Timeout,
        },
    }
}

// InitiateCheckout registers a payment with the provider under our own transaction id
// and returns where the donor has to be sent to pay.
func (c *Client) InitiateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
    payload := checkoutPayload{
        APIKey:        c.apiKey,
        SiteID:        c.siteIDValue(),
        TransactionID: req.TransactionID,
        Amount:        json.Number(req.Amount.String()),
        Currency:      req.Currency,
        Description:   req.Description,
        NotifyURL:     req.NotifyURL,
        ReturnURL:     req.ReturnURL,
        Channels:      c.channels,
    }
    if name := strings.TrimSpace(req.CustomerName); name != "" {
        payload.CustomerName = name
    } else {
        payload.CustomerName = "Donateur"
        payload.CustomerSurname = "Anonyme"
    }
    if len(req.Metadata) > 0 {
        meta, err := json.Marshal(req.Metadata)
        if err != nil {
            return Checkout{}, fmt.Errorf("cinetpay: failed to marshal metadata: %w", err)
        }
        payload.Metadata = string(meta)
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return Checkout{}, fmt.Errorf("cinetpay: failed to marshal request: %w", err)
    }

    data, err := c.do(ctx, c.checkoutURL, "application/json", bytes.NewReader(body))
    if err != nil {
        return Checkout{}, err
    }

    var resp checkoutResponse
    if err := json.Unmarshal(data, &resp); err != nil {
        return Checkout{}, fmt.Errorf("%w: decode checkout response: %v", ErrProviderUnavailable, err)
    }
    if resp.Code != codeCheckoutCreated {
        return Checkout{}, fmt.Errorf("%w: code %s: %s", ErrProviderRejected, resp.Code, firstNonEmpty(resp.Description, resp.Message))
    }
    if resp.Data.PaymentURL == "" {
        return Checkout{}, fmt.Errorf("%w: checkout response without payment url", ErrProviderUnavailable)
    }

    return Checkout{
        PaymentURL:   resp.Data.PaymentURL,
        PaymentToken: resp.Data.PaymentToken,
    }, nil
}

// CheckStatus asks the provider directly for the state of a transaction. A payment that
// is not successful is a normal answer, not an error.
func (c *Client) CheckStatus(ctx context.Context, transactionID string) (PaymentStatus, error) {
    form := url.Values{}
    form.Set("username", c.apiKey)
    form.Set("password", c.siteID)
    form.Set("cpm_trans_id", transactionID)

    data, err := c.do(ctx, c.statusURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
    if err != nil {
        return PaymentStatus{}, err
    }

    var resp struct {
        Code    string          `json:"code"`
        Message string          `json:"message"`
        Data    json.RawMessage `json:"data"`
    }
    if err := json.Unmarshal(data, &resp); err != nil {
        return PaymentStatus{}, fmt.Errorf("%w: decode status response: %v", ErrProviderUnavailable, err)
    }

    status := PaymentStatus{
        TransactionID: transactionID,
        ResultCode:    resp.Code,
        ErrorMessage:  resp.Message,
    }
    raw := bytes.TrimSpace(resp.Data)
    if len(raw) == 0 || raw[0] != '{' {
        // No payment data: the call itself failed or the transaction is unknown.
        status.ResultCode = ""
        return status, nil
    }

    var d statusData
    if err := json.Unmarshal(raw, &d); err != nil {
        return PaymentStatus{}, fmt.Errorf("%w: decode status data: %v", ErrProviderUnavailable, err)
    }
    amount, err := d.amount()
    if err != nil {
        return PaymentStatus{}, fmt.Errorf("%w: invalid amount %s", ErrProviderUnavailable, string(d.Amount))
    }

    status.ResultCode = d.Result
    status.TransStatus = strings.ToUpper(strings.TrimSpace(d.TransStatus))
    status.Amount = amount
    status.Currency = d.Currency
    status.PaymentID = d.PayID
    status.PaymentMethod = d.Method
    status.PayerPhone = d.PhonePrefix + d.Phone
    if d.ErrorMessage != "" {
        status.ErrorMessage = d.ErrorMessage
    }
    if d.TransID != "" {
        status.TransactionID = d.TransID
    }
    return status, nil
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
    if err != nil {
        return nil, fmt.Errorf("cinetpay: failed to create request: %w", err)
    }
    req.Header.Set("Content-Type", contentType)
    req.Header.Set("Accept", "application/json")

    resp, err := c.httpClient.Do(req)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
    }
    defer resp.Body.Close()

    data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
    if err != nil {
        return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
    }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return nil, fmt.Errorf("%w: HTTP %d", ErrProviderUnavailable, resp.StatusCode)
    }
    return data, nil
}

// siteIDValue sends numeric site ids as JSON numbers.
func (c *Client) siteIDValue() any {
    if n, err := strconv.ParseInt(c.siteID, 10, 64); err == nil {
        return n
    }
    return c.siteID
}

func firstNonEmpty(values ...string) string {
    for _, v := range values {
        if v != "" {
            return v
        }
    }
    return ""
}
