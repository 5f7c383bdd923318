package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/gearline/crm/config"
	"github.com/gearline/crm/pkg/database"
	"github.com/gearline/crm/pkg/testdata"
)

// Seeds a development database with agents, intake leads, and a template
// catalog so the assignment and dispatch flows can be exercised locally.
func main() {
	agents := flag.Int("agents", 5, "number of agents to create")
	leads := flag.Int("leads", 50, "number of unassigned leads to create")
	templates := flag.Int("templates", 4, "number of whatsapp templates to create")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg := config.Load()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatalf("❌ %v", err)
	}

	agentRows := testdata.Agents(*agents)
	if err := db.Create(&agentRows).Error; err != nil {
		logger.Fatalf("❌ Failed to seed agents: %v", err)
	}
	logger.Printf("✅ Seeded %d agents", len(agentRows))

	leadRows := testdata.UnassignedLeads(*leads, time.Now())
	if err := db.Create(&leadRows).Error; err != nil {
		logger.Fatalf("❌ Failed to seed leads: %v", err)
	}
	logger.Printf("✅ Seeded %d unassigned leads", len(leadRows))

	templateRows := testdata.Templates(*templates)
	if err := db.Create(&templateRows).Error; err != nil {
		logger.Fatalf("❌ Failed to seed templates: %v", err)
	}
	logger.Printf("✅ Seeded %d templates", len(templateRows))
}
