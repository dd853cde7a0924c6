package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/payment"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/transaction"
)

// maxNotificationBytes bounds provider callback bodies.
const maxNotificationBytes = 1 << 20

type initiateRequest struct {
	PhoneNumber      string  `json:"phoneNumber"`
	Amount           float64 `json:"amount"`
	UserID           string  `json:"userId"`
	SubscriptionTier string  `json:"subscriptionTier"`
}

// transactionView is the client-facing projection of a transaction.
type transactionView struct {
	TransactionID      string             `json:"transactionId"`
	Status             transaction.Status `json:"status"`
	Amount             int64              `json:"amount"`
	PhoneNumber        string             `json:"phoneNumber"`
	MpesaReceiptNumber string             `json:"mpesaReceiptNumber,omitempty"`
	ResultCode         string             `json:"resultCode,omitempty"`
	ResultDesc         string             `json:"resultDesc,omitempty"`
	Error              string             `json:"error,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func viewOf(t *transaction.Transaction) transactionView {
	return transactionView{
		TransactionID:      t.ID.String(),
		Status:             t.Status,
		Amount:             t.Amount,
		PhoneNumber:        t.PhoneNumber,
		MpesaReceiptNumber: t.MpesaReceiptNumber,
		ResultCode:         t.ResultCode,
		ResultDesc:         t.ResultDesc,
		Error:              t.Error,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (s *Server) initiatePayment(c *gin.Context) {
	var req initiateRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.gateway.Initiate(c.Request.Context(), learngate.InitiateInput{
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		UserID:      req.UserID,
		Tier:        plan.Tier(req.SubscriptionTier),
	})
	if err != nil {
		s.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"transactionId":     res.TransactionID,
		"checkoutRequestId": res.CheckoutRequestID,
		"message":           res.CustomerMessage,
	})
}

// paymentCallback always answers 200; the ack body tells the provider
// whether the notification was processed.
func (s *Server) paymentCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		c.JSON(http.StatusOK, payment.Failed)
		return
	}
	c.JSON(http.StatusOK, s.gateway.HandleCallback(c.Request.Context(), body))
}

func (s *Server) paymentTimeout(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		c.JSON(http.StatusOK, payment.Failed)
		return
	}
	c.JSON(http.StatusOK, s.gateway.HandleTimeout(c.Request.Context(), body))
}

func (s *Server) paymentStatus(c *gin.Context) {
	uid := c.Query("userId")
	if uid == "" {
		respondBadRequest(c, "Missing required query parameter: userId")
		return
	}

	txn, err := s.gateway.PaymentStatus(c.Request.Context(), c.Param("transactionId"), uid)
	if err != nil {
		s.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"transaction": viewOf(txn),
	})
}
