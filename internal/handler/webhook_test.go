package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"logpattern-license-server/internal/database"
	"logpattern-license-server/internal/model"
	"logpattern-license-server/internal/payment"
	"logpattern-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

func checkoutEvent(eventID, status string) []byte {
	payload := fmt.Sprintf(`{"type":"checkout.session.completed","data":{"object":{"id":%q,"payment_status":%q,"customer_details":{"email":"a@b.com"},"metadata":{"plan":"Pro"}}}}`,
		eventID, status)
	return []byte(payload)
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, sig string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req, _ := http.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]interface{}
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &parsed))
	}
	return resp, parsed
}

func TestWebhookHealthcheck(t *testing.T) {
	app, _, _ := newTestApp(t, testConfig())

	req, _ := http.NewRequest("GET", "/api/v1/payments/webhook", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookIssuesLicense(t *testing.T) {
	app, _, db := newTestApp(t, testConfig())

	resp, parsed := postWebhook(t, app, checkoutEvent("evt_wh_1", "paid"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, parsed["success"])

	key, _ := parsed["licenseKey"].(string)
	assert.True(t, strings.HasPrefix(key, "LP-"))

	var license model.License
	require.NoError(t, db.Where("key = ?", key).First(&license).Error)
	assert.Equal(t, "Pro", license.Plan)
	assert.False(t, license.Activated)

	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_wh_1").First(&event).Error)
	assert.Equal(t, key, event.LicenseKey)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	app, _, db := newTestApp(t, testConfig())

	resp, first := postWebhook(t, app, checkoutEvent("evt_wh_dup", "paid"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	firstKey, _ := first["licenseKey"].(string)
	require.NotEmpty(t, firstKey)

	// 重复投递返回 200 和 already processed
	resp, second := postWebhook(t, app, checkoutEvent("evt_wh_dup", "paid"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["processed"])
	assert.Equal(t, "already processed", second["note"])

	// 事件记录仍指向首次生成的密钥
	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_wh_dup").First(&event).Error)
	assert.Equal(t, firstKey, event.LicenseKey)

	var count int64
	db.Model(&model.License{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	app, _, db := newTestApp(t, testConfig())

	body := []byte(`{"type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	resp, parsed := postWebhook(t, app, body, "")
	// 其他类型必须确认收到，防止重投风暴
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, parsed["received"])

	var count int64
	db.Model(&model.License{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhookNotPaidStrict(t *testing.T) {
	app, _, db := newTestApp(t, testConfig())

	resp, parsed := postWebhook(t, app, checkoutEvent("evt_wh_unpaid", "unpaid"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, parsed["received"])
	assert.Equal(t, "payment not completed", parsed["note"])

	var count int64
	db.Model(&model.License{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhookMalformedBody(t *testing.T) {
	app, _, _ := newTestApp(t, testConfig())

	resp, _ := postWebhook(t, app, []byte("not json"), "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// 配置了签名密钥时校验 Stripe-Signature
func TestWebhookSignatureVerification(t *testing.T) {
	cfg := testConfig()
	secret := "whsec_test"

	db := database.OpenTest()
	t.Cleanup(func() { database.CleanTest(db) })

	licenses := service.NewLicenseService(db, nil, nil, cfg.RequirePaid, nil)
	gateway := payment.NewGateway("", secret)
	h := New(db, cfg, licenses, gateway, nil)

	app := fiber.New()
	app.Post("/api/v1/payments/webhook", h.HandleStripeWebhook)

	body := checkoutEvent("evt_signed", "paid")

	// 无签名/错误签名被拒绝
	resp, _ := postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = postWebhook(t, app, body, "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// 正确签名通过
	now := time.Now()
	sig := webhook.ComputeSignature(now, body, secret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	resp, parsed := postWebhook(t, app, body, header)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, parsed["success"])
}
