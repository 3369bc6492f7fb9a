package worker

import (
	"testing"
	"time"

	"wacast/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshCampaignCounters(t *testing.T) {
	db := newTestDB(t)

	campaign := models.Campaign{UserID: 1, Name: "c", Body: "b", Status: models.CampaignRunning}
	require.NoError(t, db.Create(&campaign).Error)

	now := time.Now()
	items := []models.CampaignItem{
		{CampaignID: campaign.ID, Status: models.ItemPending},
		{CampaignID: campaign.ID, Status: models.ItemSending},
		{CampaignID: campaign.ID, Status: models.ItemSent},
		{CampaignID: campaign.ID, Status: models.ItemDelivered, FirstReplyAt: &now, AutoReplyCount: 2},
		{CampaignID: campaign.ID, Status: models.ItemRead, FirstReplyAt: &now},
		{CampaignID: campaign.ID, Status: models.ItemFailed},
		{CampaignID: campaign.ID, Status: models.ItemSkipped},
	}
	for i := range items {
		require.NoError(t, db.Create(&items[i]).Error)
	}

	require.NoError(t, RefreshCampaignCounters(db, campaign.ID))
	require.NoError(t, db.First(&campaign, campaign.ID).Error)

	assert.Equal(t, 7, campaign.Total)
	// sent is cumulative: everything that at least reached the provider
	assert.Equal(t, 3, campaign.SentCount)
	assert.Equal(t, 2, campaign.DeliveredCount)
	assert.Equal(t, 1, campaign.ReadCount)
	assert.Equal(t, 1, campaign.FailedCount)
	assert.Equal(t, 1, campaign.SkippedCount)
	// done excludes only items still in motion
	assert.Equal(t, 5, campaign.DoneCount)
	assert.Equal(t, 2, campaign.RepliedCount)
	assert.Equal(t, 2, campaign.AutoRepliedCount)
}

func TestRefreshCampaignCountersEmptyCampaign(t *testing.T) {
	db := newTestDB(t)

	campaign := models.Campaign{UserID: 1, Name: "c", Body: "b", Status: models.CampaignRunning, SentCount: 9}
	require.NoError(t, db.Create(&campaign).Error)

	require.NoError(t, RefreshCampaignCounters(db, campaign.ID))
	require.NoError(t, db.First(&campaign, campaign.ID).Error)

	// stale denormalized values are corrected, not preserved
	assert.Equal(t, 0, campaign.Total)
	assert.Equal(t, 0, campaign.SentCount)
	assert.Equal(t, 0, campaign.DoneCount)
}
