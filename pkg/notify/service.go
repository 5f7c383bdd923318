package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
)

// Options holds the delivery credentials.
type Options struct {
	SendGridAPIKey  string
	EmailFrom       string
	EmailFromName   string
	OpsEmail        string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

// Service delivers best-effort notifications over email and web push.
// Failures are logged, never propagated into the calling workflow.
type Service struct {
	pushStore domain.PushStore
	opts      Options
	logger    *log.Logger
}

func NewService(pushStore domain.PushStore, opts Options, logger *log.Logger) *Service {
	return &Service{pushStore: pushStore, opts: opts, logger: logger}
}

// NotifyAssignment pushes a "new lead" alert to the agent's browsers.
// Delivery runs off the caller's goroutine and outlives its context.
func (s *Service) NotifyAssignment(_ context.Context, userID uint, lead *models.Lead) {
	payload := map[string]string{
		"title": "New lead assigned",
		"body":  fmt.Sprintf("%s (%s) is now yours", lead.CustomerName, lead.Mobile),
	}
	go s.withTimeout(func(ctx context.Context) {
		s.push(ctx, userID, payload)
	})
}

// NotifyJobDone emails the operations inbox a bulk job summary and pushes
// to the job creator when one is recorded.
func (s *Service) NotifyJobDone(_ context.Context, job *models.WhatsAppBulkJob) {
	subject := fmt.Sprintf("Bulk WhatsApp job #%d %s", job.ID, job.Status)
	body := fmt.Sprintf(
		"Job #%d (template %s) finished with status %s.\n\nRecipients: %d\nSent: %d\nFailed: %d\n",
		job.ID, job.TemplateSlug, job.Status, job.TotalCount, job.SentCount, job.FailedCount)
	creator := job.CreatedBy
	sent, failed := job.SentCount, job.FailedCount

	go s.withTimeout(func(ctx context.Context) {
		s.email(subject, body)
		if creator != nil {
			s.push(ctx, *creator, map[string]string{
				"title": subject,
				"body":  fmt.Sprintf("%d sent, %d failed", sent, failed),
			})
		}
	})
}

func (s *Service) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx)
}

func (s *Service) email(subject, body string) {
	if s.opts.SendGridAPIKey == "" || s.opts.OpsEmail == "" {
		return
	}
	from := mail.NewEmail(s.opts.EmailFromName, s.opts.EmailFrom)
	to := mail.NewEmail("", s.opts.OpsEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	client := sendgrid.NewSendClient(s.opts.SendGridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		s.logger.Printf("⚠️ Failed to send summary email: %v", err)
		return
	}
	if resp.StatusCode >= 400 {
		s.logger.Printf("⚠️ Summary email rejected: HTTP %d", resp.StatusCode)
	}
}

func (s *Service) push(ctx context.Context, userID uint, payload map[string]string) {
	if s.opts.VAPIDPrivateKey == "" {
		return
	}
	subs, err := s.pushStore.SubscriptionsForUser(ctx, userID)
	if err != nil {
		s.logger.Printf("⚠️ Failed to load push subscriptions for user %d: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("⚠️ Failed to encode push payload: %v", err)
		return
	}

	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, data, target, &webpush.Options{
			Subscriber:      s.opts.VAPIDSubscriber,
			VAPIDPublicKey:  s.opts.VAPIDPublicKey,
			VAPIDPrivateKey: s.opts.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			s.logger.Printf("⚠️ Push to user %d failed: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			// The browser dropped this endpoint.
			if err := s.pushStore.DeleteSubscription(ctx, sub.ID); err != nil {
				s.logger.Printf("⚠️ Failed to prune dead subscription %d: %v", sub.ID, err)
			}
		}
		resp.Body.Close()
	}
}
