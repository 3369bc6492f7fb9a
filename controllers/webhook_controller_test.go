package controller

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"wacast/config"
	"wacast/models"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newWebhookApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)

	l := logrus.New()
	l.SetOutput(io.Discard)
	entry := logrus.NewEntry(l)

	config.AppConfig.Whapi.WebhookSecret = "hook-secret"
	t.Cleanup(func() { config.AppConfig.Whapi.WebhookSecret = "" })

	wc := NewWebhookController(db, entry, worker.NewAutoReplier(db, &okGateway{}, entry))
	app := fiber.New()
	app.Post("/webhooks/whapi", wc.HandleWhapiWebhook)
	return app, db
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	app, db := newWebhookApp(t)

	req := httptest.NewRequest("POST", "/webhooks/whapi", strings.NewReader(`{}`))
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)

	req = httptest.NewRequest("POST", "/webhooks/whapi", strings.NewReader(`{}`))
	req.Header.Set("x-whapi-secret", "wrong")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)

	// rejected deliveries are not logged
	var count int64
	require.NoError(t, db.Model(&models.WebhookLog{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestWebhookAcceptsSecretInQuery(t *testing.T) {
	app, _ := newWebhookApp(t)

	req := httptest.NewRequest("POST", "/webhooks/whapi?secret=hook-secret", strings.NewReader(`{}`))
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}

func TestWebhookAppliesStatusUpdates(t *testing.T) {
	app, db := newWebhookApp(t)

	campaign := models.Campaign{UserID: 1, Name: "c", Body: "b", Status: models.CampaignRunning}
	require.NoError(t, db.Create(&campaign).Error)
	item := models.CampaignItem{CampaignID: campaign.ID, Phone: "5215550001", Status: models.ItemSent}
	require.NoError(t, db.Create(&item).Error)
	msg := models.Message{
		To: item.Phone, Status: models.MessageSent, Source: models.SourceCampaign,
		ClientRef: "campaign:1:1:1", WaMessageID: "wamid-1",
		CampaignID: &campaign.ID, CampaignItemID: &item.ID,
	}
	require.NoError(t, db.Create(&msg).Error)

	payload := `{"event":"statuses","statuses":[{"id":"wamid-1","status":"delivered"}]}`
	req := httptest.NewRequest("POST", "/webhooks/whapi", strings.NewReader(payload))
	req.Header.Set("x-whapi-secret", "hook-secret")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 1, body["statuses"])

	require.NoError(t, db.First(&msg, msg.ID).Error)
	assert.Equal(t, models.MessageDelivered, msg.Status)
	require.NoError(t, db.First(&item, item.ID).Error)
	assert.Equal(t, models.ItemDelivered, item.Status)

	// the raw delivery landed in the audit log
	var wlog models.WebhookLog
	require.NoError(t, db.First(&wlog).Error)
	assert.Equal(t, "statuses", wlog.EventType)
	assert.Equal(t, "wamid-1", wlog.WaMessageID)
	assert.Contains(t, wlog.Payload, "wamid-1")
}

func TestWebhookLogsUnparseablePayload(t *testing.T) {
	app, db := newWebhookApp(t)

	req := httptest.NewRequest("POST", "/webhooks/whapi", strings.NewReader("not json at all"))
	req.Header.Set("x-whapi-secret", "hook-secret")

	res, err := app.Test(req)
	require.NoError(t, err)
	// junk is acknowledged so the provider stops retrying
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	var wlog models.WebhookLog
	require.NoError(t, db.First(&wlog).Error)
	assert.Equal(t, "unparseable", wlog.EventType)
	assert.Equal(t, "not json at all", wlog.Payload)
}

func TestWebhookRoutesInboundToBot(t *testing.T) {
	app, db := newWebhookApp(t)

	payload := `{"event":"messages","messages":[{"id":"m1","from":"5215550001","body":"hola"}]}`
	req := httptest.NewRequest("POST", "/webhooks/whapi", strings.NewReader(payload))
	req.Header.Set("x-whapi-secret", "hook-secret")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	assert.EqualValues(t, 1, body["processed"])
	// the bot is disabled by default, so no reply went out
	assert.EqualValues(t, 0, body["replied"])

	var inbound models.InboundMessage
	require.NoError(t, db.First(&inbound).Error)
	assert.Equal(t, "m1", inbound.WaMessageID)
	assert.Equal(t, "5215550001", inbound.From)
}
