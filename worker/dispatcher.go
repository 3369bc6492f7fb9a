package worker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wacast/models"
	"wacast/utils"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// A ledger entry pending longer than this is presumed lost at the
	// provider and forcibly failed so retry logic can take over
	inFlightTTL = 2 * time.Minute

	// Reschedule delay for an item whose previous send may still be
	// in flight
	inFlightRecheckDelay = 5 * time.Second

	// Reschedule delay after a hard provider limit pauses the campaign
	hardLimitRetryDelay = 60 * time.Second

	// Inter-message pacing bounds (the outbound rate limit)
	minDelayMs = 250
	maxDelayMs = 60000

	// Retry budget bound
	MaxRetriesCap = 50
)

// Dispatcher drains campaign items through the gateway, one item at a time.
// A single loop runs per process (start-if-idle); correctness under multiple
// processes relies on the database claim and the unique client_ref, never on
// in-memory locks.
type Dispatcher struct {
	DB            *gorm.DB
	Gateway       Gateway
	Logger        *logrus.Entry
	BackoffBaseMs int

	// How long to wait when pending items exist but all are backing off
	PollInterval time.Duration

	mu      sync.Mutex
	running bool
}

func NewDispatcher(db *gorm.DB, gateway Gateway, logger *logrus.Entry, backoffBaseMs int) *Dispatcher {
	return &Dispatcher{
		DB:            db,
		Gateway:       gateway,
		Logger:        logger,
		BackoffBaseMs: backoffBaseMs,
		PollInterval:  3 * time.Second,
	}
}

// Trigger starts the dispatch loop if it is not already running. Safe to
// call from any goroutine; concurrent calls collapse into one loop.
func (d *Dispatcher) Trigger() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.run()
}

// Running reports whether the loop is currently active
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) run() {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			d.Logger.Errorf("dispatch loop panic: %v", r)
		}
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	for {
		campaign, err := d.nextRunningCampaign()
		if err != nil {
			d.Logger.Errorf("polling campaigns: %v", err)
			return
		}
		if campaign == nil {
			// idle until the next trigger
			return
		}
		d.processNext(campaign)
	}
}

// nextRunningCampaign picks the oldest running campaign, or nil when idle
func (d *Dispatcher) nextRunningCampaign() (*models.Campaign, error) {
	var campaign models.Campaign
	err := d.DB.Where("status = ?", models.CampaignRunning).
		Order("started_at").
		First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// processNext handles at most one item of the given campaign
func (d *Dispatcher) processNext(campaign *models.Campaign) {
	if !d.Gateway.IsConfigured() {
		d.Logger.Errorf("campaign %d: gateway not configured, marking failed", campaign.ID)
		d.DB.Model(campaign).Updates(map[string]interface{}{
			"status":      models.CampaignFailed,
			"finished_at": time.Now(),
		})
		return
	}

	item, err := d.nextEligibleItem(campaign.ID)
	if err != nil {
		d.Logger.Errorf("campaign %d: picking next item: %v", campaign.ID, err)
		time.Sleep(d.PollInterval)
		return
	}

	if item == nil {
		var remaining int64
		d.DB.Model(&models.CampaignItem{}).
			Where("campaign_id = ? AND status IN ?", campaign.ID,
				[]string{models.ItemPending, models.ItemSending}).
			Count(&remaining)
		if remaining > 0 {
			// items exist but all are waiting on backoff or in flight
			time.Sleep(d.PollInterval)
			return
		}
		d.Logger.Infof("campaign %d: drained, marking done", campaign.ID)
		d.DB.Model(campaign).Updates(map[string]interface{}{
			"status":      models.CampaignDone,
			"finished_at": time.Now(),
		})
		if err := RefreshCampaignCounters(d.DB, campaign.ID); err != nil {
			d.Logger.Errorf("campaign %d: refreshing counters: %v", campaign.ID, err)
		}
		return
	}

	if !d.claim(item) {
		// another loop instance won the claim; move on
		return
	}

	if d.handleItem(campaign, item) {
		d.pace(campaign)
	}
}

// nextEligibleItem returns the next pending item whose retry timer has
// elapsed, or a stale "sending" item abandoned by a crashed process. FIFO
// by (next_attempt_at, id) so retry delays are respected.
func (d *Dispatcher) nextEligibleItem(campaignID uint) (*models.CampaignItem, error) {
	now := time.Now()
	staleCutoff := now.Add(-inFlightTTL)

	var item models.CampaignItem
	err := d.DB.Where("campaign_id = ?", campaignID).
		Where(d.DB.
			Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.ItemPending, now).
			Or("status = ? AND last_attempt_at < ?", models.ItemSending, staleCutoff)).
		Order("next_attempt_at IS NOT NULL").
		Order("next_attempt_at").
		Order("id").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// claim atomically takes ownership of the item. For a pending item the
// attempt counter is incremented here, before the send, so a crash mid-send
// never loses or double-counts an attempt. Zero rows affected means another
// instance won the race.
func (d *Dispatcher) claim(item *models.CampaignItem) bool {
	now := time.Now()

	var res *gorm.DB
	if item.Status == models.ItemPending {
		res = d.DB.Model(&models.CampaignItem{}).
			Where("id = ? AND status = ?", item.ID, models.ItemPending).
			Updates(map[string]interface{}{
				"status":          models.ItemSending,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_attempt_at": now,
			})
	} else {
		// stale claim takeover after a crash; the attempt was already
		// counted when the dead process claimed it
		res = d.DB.Model(&models.CampaignItem{}).
			Where("id = ? AND status = ? AND last_attempt_at < ?",
				item.ID, models.ItemSending, now.Add(-inFlightTTL)).
			Update("last_attempt_at", now)
	}

	if res.Error != nil {
		d.Logger.Errorf("claiming item %d: %v", item.ID, res.Error)
		return false
	}
	if res.RowsAffected == 0 {
		return false
	}

	// reload to see the incremented attempt counter
	return d.DB.First(item, item.ID).Error == nil
}

// handleItem runs one send attempt end to end. Returns true when the
// pacing delay should apply (a send happened or the item reached a
// terminal state).
func (d *Dispatcher) handleItem(campaign *models.Campaign, item *models.CampaignItem) bool {
	ref := fmt.Sprintf("campaign:%d:%d:%d", campaign.ID, item.ID, item.Attempts)
	body := utils.RenderTemplate(campaign.Body, item.Name)

	msg, created, err := d.ensureLedgerEntry(campaign, item, body, ref)
	if err != nil {
		d.Logger.Errorf("item %d: ledger entry: %v", item.ID, err)
		d.rescheduleItem(item, inFlightRecheckDelay, "ledger error: "+err.Error())
		return false
	}

	switch msg.Status {
	case models.MessageSent, models.MessageDelivered, models.MessageRead:
		// a previous run already sent this attempt; just record the
		// item-level success
		d.markItemSent(campaign, item, msg)
		return true

	case models.MessagePending:
		if !created {
			if time.Since(msg.CreatedAt) < inFlightTTL {
				// a prior send may still be in flight at the provider;
				// do not risk a duplicate
				d.rescheduleItem(item, inFlightRecheckDelay, item.LastError)
				return false
			}
			// presumed lost; fail the stale entry and send fresh
			d.DB.Model(msg).Updates(map[string]interface{}{
				"status": models.MessageFailed,
				"error":  "presumed lost in flight",
			})
		}
	}

	waID, sendErr := d.Gateway.SendText(item.Phone, body)
	if sendErr == nil {
		d.DB.Model(msg).Updates(map[string]interface{}{
			"status":        models.MessageSent,
			"wa_message_id": waID,
			"sent_at":       time.Now(),
			"error":         "",
		})
		d.markItemSent(campaign, item, msg)
		return true
	}

	d.DB.Model(msg).Updates(map[string]interface{}{
		"status": models.MessageFailed,
		"error":  sendErr.Error(),
	})

	kind := Classify(sendErr)
	d.Logger.WithFields(logrus.Fields{
		"campaign": campaign.ID,
		"item":     item.ID,
		"attempt":  item.Attempts,
		"kind":     kind.String(),
	}).Warnf("send failed: %v", sendErr)

	switch kind {
	case FailureHardLimit:
		// continuing would waste the retry budget against a dead quota;
		// park the whole campaign for the operator
		d.DB.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Update("status", models.CampaignPaused)
		d.rescheduleItem(item, hardLimitRetryDelay, "provider limit reached: "+sendErr.Error())
		if err := RefreshCampaignCounters(d.DB, campaign.ID); err != nil {
			d.Logger.Errorf("campaign %d: refreshing counters: %v", campaign.ID, err)
		}
		return false

	case FailureRetryable:
		if item.Attempts <= campaign.MaxRetries {
			d.rescheduleItem(item, RetryBackoff(item.Attempts, d.BackoffBaseMs), sendErr.Error())
			return false
		}
		// retry budget exhausted
		d.failItem(campaign, item, msg, sendErr.Error())
		return true

	default:
		d.failItem(campaign, item, msg, sendErr.Error())
		return true
	}
}

// ensureLedgerEntry creates the ledger row for this attempt's idempotency
// token, or fetches the existing one on a unique-constraint conflict. The
// conflict path is the double-send guard.
func (d *Dispatcher) ensureLedgerEntry(campaign *models.Campaign, item *models.CampaignItem, body, ref string) (*models.Message, bool, error) {
	msg := &models.Message{
		To:             item.Phone,
		Body:           body,
		Status:         models.MessagePending,
		Source:         models.SourceCampaign,
		ClientRef:      ref,
		CampaignID:     &campaign.ID,
		CampaignItemID: &item.ID,
	}

	err := d.DB.Create(msg).Error
	if err == nil {
		return msg, true, nil
	}
	if !IsDuplicateErr(err) {
		return nil, false, err
	}

	var existing models.Message
	if err := d.DB.Where("client_ref = ?", ref).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (d *Dispatcher) markItemSent(campaign *models.Campaign, item *models.CampaignItem, msg *models.Message) {
	res := d.DB.Model(&models.CampaignItem{}).
		Where("id = ? AND status IN ?", item.ID,
			[]string{models.ItemPending, models.ItemSending}).
		Updates(map[string]interface{}{
			"status":          models.ItemSent,
			"message_id":      msg.ID,
			"next_attempt_at": nil,
			"last_error":      "",
		})
	if res.Error != nil {
		d.Logger.Errorf("item %d: marking sent: %v", item.ID, res.Error)
	}
	if err := RefreshCampaignCounters(d.DB, campaign.ID); err != nil {
		d.Logger.Errorf("campaign %d: refreshing counters: %v", campaign.ID, err)
	}
}

func (d *Dispatcher) failItem(campaign *models.Campaign, item *models.CampaignItem, msg *models.Message, errText string) {
	res := d.DB.Model(&models.CampaignItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":          models.ItemFailed,
			"message_id":      msg.ID,
			"next_attempt_at": nil,
			"last_error":      errText,
		})
	if res.Error != nil {
		d.Logger.Errorf("item %d: marking failed: %v", item.ID, res.Error)
	}
	if err := RefreshCampaignCounters(d.DB, campaign.ID); err != nil {
		d.Logger.Errorf("campaign %d: refreshing counters: %v", campaign.ID, err)
	}
}

func (d *Dispatcher) rescheduleItem(item *models.CampaignItem, delay time.Duration, errText string) {
	res := d.DB.Model(&models.CampaignItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":          models.ItemPending,
			"next_attempt_at": time.Now().Add(delay),
			"last_error":      errText,
		})
	if res.Error != nil {
		d.Logger.Errorf("item %d: rescheduling: %v", item.ID, res.Error)
	}
}

// pace sleeps for the campaign's inter-message delay, clamped to sane
// bounds; this is the outbound rate limit protecting the account
func (d *Dispatcher) pace(campaign *models.Campaign) {
	delayMs := campaign.DelayMs
	if delayMs < minDelayMs {
		delayMs = minDelayMs
	}
	if delayMs > maxDelayMs {
		delayMs = maxDelayMs
	}
	time.Sleep(time.Duration(delayMs) * time.Millisecond)
}

// IsDuplicateErr reports whether err is a unique-constraint violation.
// Duplicates are not failures here; they resolve to fetch-instead-of-create.
func IsDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	text := err.Error()
	return strings.Contains(strings.ToLower(text), "duplicate") ||
		strings.Contains(text, "UNIQUE constraint")
}
