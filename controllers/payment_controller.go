package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/flow"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body
const SignatureHeader = "X-Payment-Signature"

const maxCallbackBody = 64 << 10

// PaymentController receives payment provider callbacks
type PaymentController struct {
	flow   *flow.Flow
	secret []byte
	logger *zap.Logger
}

// NewPaymentController creates a PaymentController. An empty secret disables signature checks.
func NewPaymentController(f *flow.Flow, secret string, logger *zap.Logger) *PaymentController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentController{flow: f, secret: []byte(secret), logger: logger}
}

// Callback handles POST /api/v1/payments/callback
func (pc *PaymentController) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		respondValidation(c, "Could not read request body", err)
		return
	}

	if len(pc.secret) > 0 && !pc.verify(body, c.GetHeader(SignatureHeader)) {
		pc.logger.Warn("rejected payment callback with bad signature", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_SIGNATURE",
				"message": "Payment callback signature does not match",
			},
		})
		return
	}

	var conf flow.PaymentConfirmation
	if err := binding.JSON.BindBody(body, &conf); err != nil {
		respondValidation(c, "Invalid request data", err)
		return
	}

	order, applied, err := pc.flow.ConfirmPayment(c.Request.Context(), conf)
	if err != nil {
		pc.logger.Warn("payment callback rejected",
			zap.String("order_id", conf.OrderID),
			zap.String("reference", conf.Reference),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"applied": applied,
		"data":    order,
	})
}

// Sign returns the signature header value for body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (pc *PaymentController) verify(body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(pc.secret, body))
	return hmac.Equal(got, want)
}
