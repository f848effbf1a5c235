package bootstrap

import (
	"context"

	"github.com/code-100-precent/LingCare/internal/dashboard"
	"github.com/code-100-precent/LingCare/internal/models"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DemoRoom holds the sample history shown on a fresh dashboard.
const DemoRoom = "lingcare_demo"

type SeedService struct {
	db *gorm.DB
}

func NewSeedService(db *gorm.DB) *SeedService {
	return &SeedService{db: db}
}

func (s *SeedService) SeedAll() error {
	return s.seedDemoRoom()
}

// seedDemoRoom only runs against an empty demo room.
func (s *SeedService) seedDemoRoom() error {
	existing, err := models.ListTrackedEntries(s.db, models.TrackedEntryQuery{Room: DemoRoom, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	store := dashboard.NewStore(s.db, nil, 0, logger.Lg)
	entries, err := store.AddDemoData(context.Background(), DemoRoom)
	if err != nil {
		return err
	}
	logger.Info("demo room seeded", zap.String("room", DemoRoom), zap.Int("entries", len(entries)))
	return nil
}
