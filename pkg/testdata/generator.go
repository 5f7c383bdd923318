package testdata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/gearline/crm/pkg/models"
)

// Agents fabricates n active agents.
func Agents(n int) []*models.User {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, &models.User{
			Name:     gofakeit.Name(),
			Email:    fmt.Sprintf("agent%d@%s", i+1, gofakeit.DomainName()),
			Role:     "agent",
			IsActive: true,
		})
	}
	return users
}

// UnassignedLeads fabricates n intake-pool leads with Indian mobiles and a
// spread of statuses and followup dates around now.
func UnassignedLeads(n int, now time.Time) []*models.UnassignedLead {
	statuses := []string{
		models.LeadStatusNewLead,
		models.LeadStatusOpen,
		models.LeadStatusNeedsFollowup,
		models.LeadStatusConfirmed,
		models.LeadStatusDidNotPickUp,
	}
	leads := make([]*models.UnassignedLead, 0, n)
	for i := 0; i < n; i++ {
		followup := now.AddDate(0, 0, gofakeit.Number(-5, 5))
		leads = append(leads, &models.UnassignedLead{
			CustomerName: gofakeit.Name(),
			Mobile:       fmt.Sprintf("91%d", gofakeit.Number(7000000000, 9999999999)),
			City:         gofakeit.City(),
			Source:       gofakeit.RandomString([]string{"website", "referral", "walk-in", "campaign"}),
			Remarks:      gofakeit.Sentence(gofakeit.Number(3, 15)),
			FollowupDate: &followup,
			Status:       gofakeit.RandomString(statuses),
		})
	}
	return leads
}

// Templates fabricates a provider template catalog.
func Templates(n int) []*models.TeleobiTemplateCache {
	templates := make([]*models.TeleobiTemplateCache, 0, n)
	for i := 0; i < n; i++ {
		name := gofakeit.BuzzWord()
		templates = append(templates, &models.TeleobiTemplateCache{
			TemplateID:    fmt.Sprintf("%d", 1000+i),
			Name:          name,
			Slug:          fmt.Sprintf("template_%d", i+1),
			Language:      "en",
			Category:      "MARKETING",
			Status:        "APPROVED",
			Body:          fmt.Sprintf("Hello {{1}}, %s", gofakeit.Sentence(6)),
			VariableCount: 1,
			SyncedAt:      time.Now(),
		})
	}
	return templates
}
