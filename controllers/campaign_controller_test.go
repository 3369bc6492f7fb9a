package controller

import (
	"io"
	"strconv"
	"testing"
	"time"

	"wacast/models"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCampaignApp(t *testing.T) (*fiber.App, *gorm.DB, *models.User, *okGateway) {
	t.Helper()

	db := newTestDB(t)
	gw := &okGateway{}

	l := logrus.New()
	l.SetOutput(io.Discard)
	dispatcher := worker.NewDispatcher(db, gw, logrus.NewEntry(l), 500)
	dispatcher.PollInterval = 50 * time.Millisecond

	cc := NewCampaignController(db, testLog(), dispatcher)
	auth, user := withTestUser(db, t)

	app := fiber.New()
	api := app.Group("/campaigns", auth)
	api.Post("/", cc.CreateCampaign)
	api.Get("/:id", cc.GetCampaign)
	api.Post("/:id/resume", cc.ResumeCampaign)
	api.Post("/:id/cancel", cc.CancelCampaign)
	api.Post("/:id/retry-failed", cc.RetryFailed)
	return app, db, user, gw
}

func seedRecipients(t *testing.T, db *gorm.DB, userID uint) models.Block {
	t.Helper()

	block := models.Block{UserID: userID, Name: "clientes"}
	require.NoError(t, db.Create(&block).Error)

	rows := []models.Recipient{
		{UserID: userID, BlockID: block.ID, Name: "Ana", Phone: "5215550001", Tags: "vip"},
		{UserID: userID, BlockID: block.ID, Name: "Luis", Phone: "5215550002", Tags: "norte"},
		{UserID: userID, BlockID: block.ID, Name: "SinTel", Phone: "", Email: "s@x.mx", Tags: "vip"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
	return block
}

func TestCreateCampaignSnapshotsItems(t *testing.T) {
	app, db, user, _ := newCampaignApp(t)
	block := seedRecipients(t, db, user.ID)

	res, err := app.Test(jsonRequest("POST", "/campaigns/", fiber.Map{
		"name":     "lanzamiento",
		"body":     "Hola {NOMBRE}",
		"block_id": block.ID,
		"delay_ms": 5, // below the floor; must be clamped up
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	body := decodeBody(t, res)
	assert.Equal(t, true, body["ok"])

	var campaign models.Campaign
	require.NoError(t, db.First(&campaign).Error)
	assert.Equal(t, 3, campaign.Total)
	assert.Equal(t, 250, campaign.DelayMs)
	assert.Equal(t, models.CampaignRunning, campaign.Status)
	assert.NotNil(t, campaign.StartedAt)

	var items []models.CampaignItem
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).Order("id").Find(&items).Error)
	require.Len(t, items, 3)

	// recipient details are frozen into the item
	assert.Equal(t, "Ana", items[0].Name)
	assert.Equal(t, "5215550001", items[0].Phone)

	// the phoneless contact is skipped up front and never retried
	assert.Equal(t, models.ItemSkipped, items[2].Status)
	assert.Equal(t, "no usable address", items[2].LastError)
}

func TestCreateCampaignTagFilter(t *testing.T) {
	app, db, user, _ := newCampaignApp(t)
	seedRecipients(t, db, user.ID)

	res, err := app.Test(jsonRequest("POST", "/campaigns/", fiber.Map{
		"name":       "solo vip",
		"body":       "Hola {NOMBRE}",
		"tag_filter": "vip",
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	var campaign models.Campaign
	require.NoError(t, db.First(&campaign).Error)
	assert.Equal(t, 2, campaign.Total, "Ana and the phoneless vip")
}

func TestCreateCampaignNoMatches(t *testing.T) {
	app, db, user, _ := newCampaignApp(t)
	seedRecipients(t, db, user.ID)

	res, err := app.Test(jsonRequest("POST", "/campaigns/", fiber.Map{
		"name":       "vacio",
		"body":       "Hola",
		"tag_filter": "inexistente",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
}

func TestCancelCampaign(t *testing.T) {
	app, db, user, _ := newCampaignApp(t)

	campaign := models.Campaign{UserID: user.ID, Name: "c", Body: "b", Status: models.CampaignPaused}
	require.NoError(t, db.Create(&campaign).Error)

	res, err := app.Test(jsonRequest("POST", campaignPath(campaign.ID, "cancel"), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	require.NoError(t, db.First(&campaign, campaign.ID).Error)
	assert.Equal(t, models.CampaignCancelled, campaign.Status)
	assert.NotNil(t, campaign.FinishedAt)
}

func TestRetryFailedResetsItems(t *testing.T) {
	// an unconfigured gateway keeps the triggered dispatch loop from
	// racing the assertions below
	db := newTestDB(t)
	l := logrus.New()
	l.SetOutput(io.Discard)
	dispatcher := worker.NewDispatcher(db, offGateway{}, logrus.NewEntry(l), 500)
	cc := NewCampaignController(db, testLog(), dispatcher)
	auth, user := withTestUser(db, t)

	app := fiber.New()
	api := app.Group("/campaigns", auth)
	api.Post("/:id/retry-failed", cc.RetryFailed)

	campaign := models.Campaign{UserID: user.ID, Name: "c", Body: "b", Status: models.CampaignDone}
	require.NoError(t, db.Create(&campaign).Error)
	failed := models.CampaignItem{
		CampaignID: campaign.ID, Phone: "5215550001",
		Status: models.ItemFailed, Attempts: 4, LastError: "invalid recipient",
	}
	require.NoError(t, db.Create(&failed).Error)
	sent := models.CampaignItem{CampaignID: campaign.ID, Phone: "5215550002", Status: models.ItemSent}
	require.NoError(t, db.Create(&sent).Error)

	res, err := app.Test(jsonRequest("POST", campaignPath(campaign.ID, "retry-failed"), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	assert.EqualValues(t, 1, body["reset"])

	require.NoError(t, db.First(&failed, failed.ID).Error)
	assert.Equal(t, 0, failed.Attempts)
	assert.Empty(t, failed.LastError)

	// sent items are untouched
	require.NoError(t, db.First(&sent, sent.ID).Error)
	assert.Equal(t, models.ItemSent, sent.Status)
}

func TestGetCampaignScopedToOwner(t *testing.T) {
	app, db, _, _ := newCampaignApp(t)

	other := models.Campaign{UserID: 9999, Name: "ajena", Body: "b", Status: models.CampaignDone}
	require.NoError(t, db.Create(&other).Error)

	res, err := app.Test(jsonRequest("GET", campaignPath(other.ID, ""), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
}

func campaignPath(id uint, action string) string {
	p := "/campaigns/" + itoa(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
