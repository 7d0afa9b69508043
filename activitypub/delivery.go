package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/util"
	"github.com/google/uuid"
)

// DeliveryStore is the queue and key-lookup surface the worker needs.
// *db.DB satisfies it.
type DeliveryStore interface {
	ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error
	DeleteDelivery(id uuid.UUID) error
	ReadAccountByAcct(acct string) (error, *domain.SyncedAccount)
	IncrementPostingErrorByInbox(inboxURI string) error
}

const (
	deliveryPollInterval = 10 * time.Second
	deliveryBatchSize    = 50
	maxDeliveryAttempts  = 10
)

var backoffMinutes = []int{1, 5, 15, 60, 240, 1440}

// Worker drains the delivery queue, signing each activity with the key
// of the local account it is attributed to.
type Worker struct {
	Store  DeliveryStore
	Domain string

	client *http.Client
}

func NewWorker(store DeliveryStore, serverDomain string) *Worker {
	return &Worker{
		Store:  store,
		Domain: serverDomain,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Println("DeliveryWorker: starting")

	ticker := time.NewTicker(deliveryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("DeliveryWorker: stopping")
			return
		case <-ticker.C:
			w.processQueue(ctx)
		}
	}
}

func (w *Worker) processQueue(ctx context.Context) {
	err, items := w.Store.ReadPendingDeliveries(deliveryBatchSize)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}
	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d pending deliveries", len(*items))

	for _, item := range *items {
		if ctx.Err() != nil {
			return
		}
		if err := w.deliver(ctx, &item); err != nil {
			w.recordFailure(&item, err)
		} else {
			w.Store.DeleteDelivery(item.Id)
		}
	}
}

// recordFailure schedules the next retry with exponential backoff and
// gives up after maxDeliveryAttempts, bumping the inbox's error count.
func (w *Worker) recordFailure(item *domain.DeliveryQueueItem, cause error) {
	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
		w.Store.DeleteDelivery(item.Id)
		if err := w.Store.IncrementPostingErrorByInbox(item.InboxURI); err != nil {
			log.Printf("DeliveryWorker: Failed to record posting error for %s: %v", item.InboxURI, err)
		}
		return
	}

	backoff := backoffMinutes[min(item.Attempts-1, len(backoffMinutes)-1)]
	item.NextRetryAt = time.Now().Add(time.Duration(backoff) * time.Minute)
	log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v",
		item.InboxURI, item.Attempts, backoff, cause)
	w.Store.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
}

// deliver posts one signed activity to its inbox.
func (w *Worker) deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	var activity struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}
	if activity.Actor == "" {
		return fmt.Errorf("activity missing actor field")
	}

	// actor format: "https://bridge.example/users/alice"
	parts := strings.Split(activity.Actor, "/")
	acct := parts[len(parts)-1]

	err, account := w.Store.ReadAccountByAcct(acct)
	if err != nil || account == nil {
		return fmt.Errorf("signing account %s not found: %w", acct, err)
	}

	privateKey, err := ParsePrivateKey(account.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequestWithContext(ctx, "POST", item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	keyId := fmt.Sprintf("https://%s/users/%s#main-key", w.Domain, account.Acct)
	if err := SignRequest(req, privateKey, keyId, body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
