package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rmashqip/internal/config"
	"rmashqip/internal/models"
)

var DB *gorm.DB

var ErrNotConfigured = errors.New("backend not configured")

// Init 打开数据库并迁移；未配置时返回 ErrNotConfigured，调用方降级运行
func Init(cfg *config.AppConfig, log zerolog.Logger) (*gorm.DB, error) {
	if !cfg.BackendConfigured() {
		return nil, ErrNotConfigured
	}

	gdb, err := Open(cfg.Backend.Driver, cfg.Backend.URL)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Backend.Driver).Msg("database connection established")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	log.Info().Msg("database migration completed")

	seedContent(gdb, log)

	DB = gdb
	return gdb, nil
}

func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.Identity{},
		&models.Profile{},
		&models.RefreshSession{},
		&models.Post{},
		&models.PostLike{},
		&models.SavedPost{},
		&models.Comment{},
		&models.Follow{},
		&models.Notification{},
		// 静态内容
		&models.Event{},
		&models.Match{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// OpenTest 内存 sqlite，供各包测试使用
func OpenTest() (*gorm.DB, error) {
	gdb, err := Open("sqlite", "file::memory:")
	if err != nil {
		return nil, err
	}
	// 内存库每个连接独立，限制为单连接
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func seedContent(gdb *gorm.DB, log zerolog.Logger) {
	var count int64
	gdb.Model(&models.Match{}).Count(&count)
	if count > 0 {
		log.Debug().Msg("content already seeded, skipping")
		return
	}

	now := time.Now()
	matches := []models.Match{
		{HomeTeam: "Real Madrid", AwayTeam: "FC Barcelona", MatchDate: now.AddDate(0, 0, 7), Competition: "La Liga", Venue: "Santiago Bernabéu", Status: models.MatchStatusScheduled},
		{HomeTeam: "Atlético Madrid", AwayTeam: "Real Madrid", MatchDate: now.AddDate(0, 0, 14), Competition: "La Liga", Venue: "Metropolitano", Status: models.MatchStatusScheduled},
		{HomeTeam: "Real Madrid", AwayTeam: "Manchester City", MatchDate: now.AddDate(0, 0, 21), Competition: "UEFA Champions League", Venue: "Santiago Bernabéu", Status: models.MatchStatusScheduled},
	}
	events := []models.Event{
		{Title: "Shikim i përbashkët: El Clásico", Description: "Takohemi për të parë ndeshjen së bashku.", EventDate: now.AddDate(0, 0, 7), Location: "Tiranë", Status: models.EventStatusUpcoming},
		{Title: "Takimi vjetor i tifozëve", Description: "Takimi vjetor i komunitetit RMA Shqip.", EventDate: now.AddDate(0, 1, 0), Location: "Prishtinë", Status: models.EventStatusUpcoming},
	}

	for _, m := range matches {
		if err := gdb.Create(&m).Error; err != nil {
			log.Warn().Err(err).Str("match", m.HomeTeam+" - "+m.AwayTeam).Msg("seed match failed")
		}
	}
	for _, e := range events {
		if err := gdb.Create(&e).Error; err != nil {
			log.Warn().Err(err).Str("event", e.Title).Msg("seed event failed")
		}
	}
	log.Info().Msg("initial content created")
}
