// services/scheduler.go
package services

import (
	"log"
	"time"

	"bracket-vote-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartSourceWindowScheduler runs the vote-source housekeeping job: once a
// minute, sources whose validity window has closed are flipped inactive and
// sources whose window has opened are flipped active, so booth links show the
// right state in the fast-path UI check. The submission-time gate checks the
// window anyway; this keeps reporting and admin views honest. For sources
// that carry a window, IsActive tracks the window; the manual toggle is for
// sources without one.
func (s *SourceService) StartSourceWindowScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()
			expired := s.DB.Model(&models.VoteSource{}).
				Where("is_active = ? AND valid_until IS NOT NULL AND valid_until <= ?", true, now).
				Update("is_active", false)
			if expired.Error != nil {
				log.Printf("[Scheduler] DB error expiring vote sources: %v", expired.Error)
				return
			}
			if expired.RowsAffected > 0 {
				log.Printf("✅ Deactivated %d expired vote source(s)", expired.RowsAffected)
			}

			opened := s.DB.Model(&models.VoteSource{}).
				Where("is_active = ? AND valid_from IS NOT NULL AND valid_from <= ?", false, now).
				Where("valid_until IS NULL OR valid_until > ?", now).
				Update("is_active", true)
			if opened.Error != nil {
				log.Printf("[Scheduler] DB error opening vote sources: %v", opened.Error)
				return
			}
			if opened.RowsAffected > 0 {
				log.Printf("✅ Activated %d vote source(s) entering their window", opened.RowsAffected)
			}
		}),
	)
}
