package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/gemini"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// quotaBody is returned with 429 when a free-tier allowance is used up.
type quotaBody struct {
	Success         bool   `json:"success"`
	Error           string `json:"error"`
	Feature         string `json:"feature"`
	Limit           int64  `json:"limit"`
	Period          string `json:"period"`
	Message         string `json:"message"`
	UpgradeRequired bool   `json:"upgradeRequired"`
}

func respondContent(c *gin.Context, content string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"content": content,
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: message})
}

// respondError maps err to a status code. failure is the endpoint-specific
// label used for upstream generator errors.
func (s *Server) respondError(c *gin.Context, err error, failure string) {
	var (
		quotaErr    *learngate.QuotaExceededError
		verrs       *learngate.ValidationErrors
		upstreamErr *gemini.UpstreamError
	)

	switch {
	case errors.As(err, &quotaErr):
		body := quotaBody{
			Error:           "Usage limit exceeded",
			UpgradeRequired: true,
		}
		if d := quotaErr.Decision; d != nil {
			body.Feature = d.Feature
			body.Limit = d.Limit
			body.Period = string(d.Period)
			body.Message = d.Message
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, body)

	case errors.As(err, &verrs):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
			Error:   "Validation failed",
			Details: verrs.Messages(),
		})

	case errors.Is(err, learngate.ErrPaymentRejected):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: rejectionMessage(err)})

	case errors.Is(err, learngate.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "Forbidden"})

	case errors.Is(err, learngate.ErrTransactionNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: "Transaction not found"})

	case errors.As(err, &upstreamErr):
		status := upstreamErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		details := upstreamErr.Details
		if details == nil {
			details = gin.H{}
		}
		c.AbortWithStatusJSON(status, errorBody{
			Error:   failure,
			Details: details,
		})

	case errors.Is(err, learngate.ErrGeneratorNotConfigured):
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "Gemini API key not configured"})

	case errors.Is(err, learngate.ErrProviderUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "Payments are not configured"})

	default:
		s.logger.Error("request failed",
			"path", c.FullPath(),
			"request_id", requestIDFrom(c),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error:   "Internal server error",
			Message: err.Error(),
		})
	}
}

// rejectionMessage strips the sentinel prefix so clients see the
// provider's own wording.
func rejectionMessage(err error) string {
	msg := err.Error()
	prefix := learngate.ErrPaymentRejected.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
