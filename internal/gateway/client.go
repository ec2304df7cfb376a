/**
 * @description
 * Outbound payment URL construction and inbound callback interpretation for
 * the external payment gateway. The gateway is reached by redirecting the
 * customer's browser to a signed URL; it reports the outcome by redirecting
 * back with signed query parameters.
 *
 * @notes
 * - Amounts cross this boundary as whole minor units (amount × 100).
 * - Signed URLs carry a 15-minute expiry window in gateway-local time
 *   (GMT+7); a stale URL must be regenerated, never reused.
 */

package gateway

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// PaymentURLTTL is the gateway's own expiry window for a signed request.
// Callers deciding whether a stored URL is still usable must compare against
// this same window.
const PaymentURLTTL = 15 * time.Minute

const gatewayTimeLayout = "20060102150405" // yyyyMMddHHmmss

// gatewayLocation is the fixed timezone the gateway stamps requests in.
var gatewayLocation = time.FixedZone("GMT+7", 7*60*60)

// Client builds signed redirect URLs and interprets signed callbacks.
type Client struct {
	baseURL      string
	merchantCode string
	secret       string
	version      string
	returnURL    string
	now          func() time.Time
}

// NewClient creates a gateway client for the configured merchant.
func NewClient(baseURL, merchantCode, secret, version, returnURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		merchantCode: merchantCode,
		secret:       secret,
		version:      version,
		returnURL:    returnURL,
		now:          time.Now,
	}
}

// PaymentRequest describes one outbound payment to redirect a customer to.
type PaymentRequest struct {
	Kind       domain.PaymentType
	ContractID uuid.UUID
	Amount     decimal.Decimal
	OrderInfo  string
	ClientIP   string
}

// BuildPaymentURL assembles, signs and returns the full redirect URL along
// with the transaction reference embedded in it.
func (c *Client) BuildPaymentURL(req PaymentRequest) (paymentURL string, txnRef string, err error) {
	if req.Amount.Sign() <= 0 {
		return "", "", domain.NewValidationError("amount", "must be greater than zero")
	}

	txnRef = transactionRef(req.Kind, req.ContractID)
	created := c.now().In(gatewayLocation)

	fields := map[string]string{
		"vnp_Version":    c.version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.merchantCode,
		"vnp_Amount":     fmt.Sprintf("%d", domain.GatewayMinorUnits(req.Amount)),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  c.returnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": created.Format(gatewayTimeLayout),
		"vnp_ExpireDate": created.Add(PaymentURLTTL).Format(gatewayTimeLayout),
	}

	secureHash := Sign(fields, c.secret)

	// Query string encodes both names and values; the hash goes last.
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names)+1)
	for _, name := range names {
		pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(fields[name]))
	}
	pairs = append(pairs, FieldSecureHash+"="+secureHash)

	return c.baseURL + "?" + strings.Join(pairs, "&"), txnRef, nil
}

// CallbackResult is the verified interpretation of a gateway callback.
type CallbackResult struct {
	Valid             bool
	Success           bool
	TxnRef            string
	AmountMinorUnits  int64
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	CardType          string
	PayDate           string
	SecureHash        string
	FailureReason     string
}

// ParseCallback verifies the signature over the raw callback query
// parameters and decodes the outcome. An invalid signature yields
// Valid=false; the caller must mark the payment FAILED and never apply it.
func (c *Client) ParseCallback(params url.Values) CallbackResult {
	fields := make(map[string]string, len(params))
	for name := range params {
		if value := params.Get(name); value != "" {
			fields[name] = value
		}
	}

	result := CallbackResult{
		TxnRef:            params.Get("vnp_TxnRef"),
		ResponseCode:      params.Get("vnp_ResponseCode"),
		TransactionStatus: params.Get("vnp_TransactionStatus"),
		TransactionNo:     params.Get("vnp_TransactionNo"),
		BankCode:          params.Get("vnp_BankCode"),
		CardType:          params.Get("vnp_CardType"),
		PayDate:           params.Get("vnp_PayDate"),
		SecureHash:        params.Get(FieldSecureHash),
	}
	if amount := params.Get("vnp_Amount"); amount != "" {
		fmt.Sscanf(amount, "%d", &result.AmountMinorUnits)
	}

	result.Valid = Verify(fields, result.SecureHash, c.secret)
	if !result.Valid {
		result.FailureReason = "signature mismatch"
		return result
	}

	// Success requires both the response code and the transaction status to
	// report "00".
	result.Success = result.ResponseCode == "00" && result.TransactionStatus == "00"
	if !result.Success {
		result.FailureReason = FailureReason(result.ResponseCode)
	}
	return result
}

// ParsePayDate converts the gateway's yyyyMMddHHmmss timestamp into UTC.
func ParsePayDate(payDate string) (time.Time, error) {
	return time.ParseInLocation(gatewayTimeLayout, payDate, gatewayLocation)
}

// FailureReason maps a gateway response code to a human-readable reason.
func FailureReason(responseCode string) string {
	switch responseCode {
	case "07":
		return "transaction succeeded but the confirmation was rejected by the bank"
	case "09":
		return "card or account is not registered for internet banking"
	case "10":
		return "card or account details failed verification more than 3 times"
	case "11":
		return "payment window expired; please retry"
	case "12":
		return "card or account is locked"
	case "13":
		return "incorrect OTP; please retry"
	case "24":
		return "transaction cancelled by the customer"
	case "51":
		return "insufficient account balance"
	case "65":
		return "transaction limit exceeded"
	case "75":
		return "payment gateway is under maintenance"
	case "79":
		return "payment window expired; please retry"
	default:
		return fmt.Sprintf("transaction failed (gateway code %s)", responseCode)
	}
}

// transactionRef builds the reference the gateway echoes back:
// DEPOSIT{contract}_{8 digits} or BILL{contract}_{8 digits}.
func transactionRef(kind domain.PaymentType, contractID uuid.UUID) string {
	prefix := "BILL"
	if kind == domain.PaymentTypeDeposit {
		prefix = "DEPOSIT"
	}
	return fmt.Sprintf("%s%s_%s", prefix, shortContractRef(contractID), randomDigits(8))
}

func shortContractRef(contractID uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(contractID.String(), "-", "")[:12])
}

func randomDigits(n int) string {
	var b strings.Builder
	max := big.NewInt(10)
	for i := 0; i < n; i++ {
		digit, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand exhausting entropy is not a recoverable condition
			// for a reference string; fall back to a fixed digit.
			b.WriteByte('0')
			continue
		}
		b.WriteString(digit.String())
	}
	return b.String()
}
