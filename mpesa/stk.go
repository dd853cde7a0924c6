package mpesa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/learngate/payment"
)

// eat is East Africa Time, the zone Daraja expects STK timestamps in.
var eat = time.FixedZone("EAT", 3*60*60)

// ResultCodeProcessing is the error code Daraja answers a status query with
// while the customer has not yet acted on the prompt.
const ResultCodeProcessing = "500.001.1001"

const timestampLayout = "20060102150405"

// Timestamp formats t as YYYYMMDDHHmmss in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// Push sends an STK push. A 2xx answer with a non-zero ResponseCode is
// returned as a rejected response, not an error.
func (c *Client) Push(ctx context.Context, req payment.PushRequest) (*payment.PushResponse, error) {
	ts := Timestamp(c.now())
	body := stkPushRequest{
		BusinessShortCode: c.shortCode,
		Password:          Password(c.shortCode, c.passkey, ts),
		Timestamp:         ts,
		TransactionType:   c.transactionType,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.shortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  truncate(req.AccountReference, 12),
		TransactionDesc:   truncate(req.Narrative, 60),
	}

	var out stkPushResponse
	if err := c.postJSON(ctx, pathSTKPush, body, &out); err != nil {
		return nil, err
	}

	resp := &payment.PushResponse{
		Accepted:          out.ResponseCode == "0",
		CheckoutRequestID: out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		ResponseCode:      out.ResponseCode,
		CustomerMessage:   out.CustomerMessage,
	}
	if !resp.Accepted {
		resp.ErrorMessage = out.ResponseDescription
	}
	return resp, nil
}

// QueryStatus asks Daraja for the result of a push. The "still processing"
// error answer is returned as a result carrying ResultCodeProcessing.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
	now := c.now()
	ts := Timestamp(now)
	body := stkQueryRequest{
		BusinessShortCode: c.shortCode,
		Password:          Password(c.shortCode, c.passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	err := c.postJSON(ctx, pathSTKQuery, body, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == ResultCodeProcessing {
			return &payment.StatusResult{
				ResultCode: ResultCodeProcessing,
				ResultDesc: apiErr.Message,
				QueriedAt:  now,
			}, nil
		}
		return nil, err
	}
	if out.ResultCode == "" {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Code:       out.ResponseCode,
			Message:    fmt.Sprintf("status query returned no result: %s", out.ResponseDescription),
		}
	}

	return &payment.StatusResult{
		ResultCode: out.ResultCode,
		ResultDesc: out.ResultDesc,
		QueriedAt:  now,
	}, nil
}

// truncate cuts s to at most n runes; Daraja rejects longer references.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
