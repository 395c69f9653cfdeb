package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample plans for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlxDB.Close()

		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM plans").Error; err != nil {
				log.Fatalf("failed to clear plans: %v", err)
			}
			fmt.Println("Cleared existing plans")
		}

		tenCredits := 10
		plans := []struct {
			Name           string
			Description    string
			PriceCents     int64
			BillingPeriod  string
			TrialDays      int
			SessionCredits *int
		}{
			{"starter-monthly", "10 tutoring sessions per month", 9900, "monthly", 7, &tenCredits},
			{"unlimited-monthly", "Unlimited tutoring sessions", 19900, "monthly", 7, nil},
			{"unlimited-yearly", "Unlimited tutoring sessions, billed yearly", 199900, "yearly", 14, nil},
		}

		for _, p := range plans {
			var exists int
			row := db.Raw("SELECT 1 FROM plans WHERE name = ?", p.Name).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("plan already exists:", p.Name)
				continue
			}

			if err := db.Exec(
				"INSERT INTO plans (name, description, price_cents, currency, billing_period, trial_days, session_credits, is_active, created_at, updated_at) VALUES (?, ?, ?, 'USD', ?, ?, ?, true, now(), now())",
				p.Name, p.Description, p.PriceCents, p.BillingPeriod, p.TrialDays, p.SessionCredits,
			).Error; err != nil {
				log.Fatalf("failed to insert plan %s: %v", p.Name, err)
			}
			fmt.Println("Seeded plan:", p.Name)
		}
	},
}
