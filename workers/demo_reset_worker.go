package workers

import (
	"context"
	"log"
	"time"

	"bracket-vote-system/models"
	"bracket-vote-system/services"

	"gorm.io/gorm"
)

// DemoResetWorker keeps sandbox campaigns pristine: every interval it wipes
// votes and re-initializes the bracket of each campaign flagged IsDemo, so a
// public demo instance always shows a fresh round 1.
type DemoResetWorker struct {
	DB       *gorm.DB
	Brackets *services.BracketService
	Interval time.Duration
}

func NewDemoResetWorker(db *gorm.DB, brackets *services.BracketService, interval time.Duration) *DemoResetWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &DemoResetWorker{DB: db, Brackets: brackets, Interval: interval}
}

// Run polls until the context is cancelled. Each demo campaign is reset on
// its own schedule, measured from its last reset.
func (w *DemoResetWorker) Run(ctx context.Context) {
	log.Printf("Starting demo campaign reset worker (every %s)...", w.Interval)

	lastReset := make(map[string]time.Time)
	ticker := time.NewTicker(w.Interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Demo reset worker stopped.")
			return
		case <-ticker.C:
			var campaigns []models.Campaign
			if err := w.DB.Where("is_demo = ?", true).Find(&campaigns).Error; err != nil {
				log.Printf("❌ Demo reset worker DB error: %v", err)
				continue
			}

			now := time.Now()
			for _, campaign := range campaigns {
				if last, ok := lastReset[campaign.ID]; ok && now.Sub(last) < w.Interval {
					continue
				}
				if err := w.Brackets.InitializeBracket(campaign.ID); err != nil {
					log.Printf("❌ Failed to reset demo campaign %s: %v", campaign.Slug, err)
					continue
				}
				lastReset[campaign.ID] = now
				log.Printf("✅ Reset demo campaign: %s", campaign.Slug)
			}
		}
	}
}
