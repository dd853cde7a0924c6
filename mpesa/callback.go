package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xraph/learngate/payment"
)

type callbackEnvelope struct {
	Body struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string      `json:"MerchantRequestID"`
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        json.Number `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type timeoutEnvelope struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	callbackEnvelope
}

// ParseCallback decodes a Daraja STK result notification.
func (c *Client) ParseCallback(body []byte) (*payment.CallbackResult, error) {
	return ParseCallback(body)
}

// ParseTimeout extracts the checkout request id from a timeout notification.
func (c *Client) ParseTimeout(body []byte) (string, error) {
	return ParseTimeout(body)
}

// ParseCallback decodes a Daraja STK result notification. Metadata items
// are read by name; missing items leave their fields empty.
func ParseCallback(body []byte) (*payment.CallbackResult, error) {
	var env callbackEnvelope
	if err := decode(body, &env); err != nil {
		return nil, err
	}
	cb := env.Body.STKCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing Body.stkCallback.CheckoutRequestID", payment.ErrMalformedPayload)
	}
	code, err := strconv.Atoi(cb.ResultCode.String())
	if err != nil {
		return nil, fmt.Errorf("%w: result code %q", payment.ErrMalformedPayload, cb.ResultCode)
	}

	res := &payment.CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return res, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, ok := number(item.Value); ok {
				res.Amount = int64(math.Round(f))
			}
		case "MpesaReceiptNumber":
			res.Receipt = text(item.Value)
		case "TransactionDate":
			res.TransactionDate = text(item.Value)
		case "PhoneNumber":
			res.PhoneNumber = text(item.Value)
		}
	}
	return res, nil
}

// ParseTimeout accepts both the flat {"CheckoutRequestID": ...} shape and
// the callback envelope.
func ParseTimeout(body []byte) (string, error) {
	var env timeoutEnvelope
	if err := decode(body, &env); err != nil {
		return "", err
	}
	if env.CheckoutRequestID != "" {
		return env.CheckoutRequestID, nil
	}
	if cb := env.Body.STKCallback; cb != nil && cb.CheckoutRequestID != "" {
		return cb.CheckoutRequestID, nil
	}
	return "", fmt.Errorf("%w: missing CheckoutRequestID", payment.ErrMalformedPayload)
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", payment.ErrMalformedPayload, err)
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// text renders numbers without exponent or fraction, so 20191219102115 and
// 254708374149 survive as digit strings.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
