package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"rmashqip/internal/models"
)

const (
	counterQueueSize = 1000
	counterBatchSize = 50
	counterFlush     = 500 * time.Millisecond
)

// CounterService 异步重算帖子的点赞数和评论数
// 计数在写入时已经增减，这里以关联表为准做最终校正
type CounterService struct {
	db      *gorm.DB
	log     zerolog.Logger
	queue   chan string // 待重算的帖子 ID 队列
	pending map[string]bool
	mu      sync.Mutex

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewCounterService(db *gorm.DB, log zerolog.Logger) *CounterService {
	return &CounterService{
		db:      db,
		log:     log,
		queue:   make(chan string, counterQueueSize),
		pending: make(map[string]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 启动后台 worker
func (s *CounterService) Start() {
	go s.worker()
}

// Stop 处理完已收集的批次后退出
func (s *CounterService) Stop() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// ScheduleRecount 将帖子加入重算队列（异步），同一帖子排队期间只算一次
func (s *CounterService) ScheduleRecount(postID string) {
	s.mu.Lock()
	if s.pending[postID] {
		s.mu.Unlock()
		return
	}
	s.pending[postID] = true
	s.mu.Unlock()

	select {
	case s.queue <- postID:
	default:
		// 队列满了，移除 pending 标记
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
		s.log.Warn().Str("post_id", postID).Msg("counter queue full, skipping recount")
	}
}

func (s *CounterService) worker() {
	defer close(s.done)

	batch := make([]string, 0, counterBatchSize)
	ticker := time.NewTicker(counterFlush)
	defer ticker.Stop()

	for {
		select {
		case postID := <-s.queue:
			batch = append(batch, postID)
			if len(batch) >= counterBatchSize {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			// 排空队列
			for {
				select {
				case postID := <-s.queue:
					batch = append(batch, postID)
				default:
					s.processBatch(batch)
					return
				}
			}
		}
	}
}

func (s *CounterService) processBatch(postIDs []string) {
	for _, postID := range postIDs {
		if err := s.Recount(context.Background(), postID); err != nil {
			s.log.Error().Err(err).Str("post_id", postID).Msg("recount failed")
		}

		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
	}
}

// Recount 同步重算单个帖子的计数
func (s *CounterService) Recount(ctx context.Context, postID string) error {
	db := s.db.WithContext(ctx)

	var likes int64
	if err := db.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&likes).Error; err != nil {
		return err
	}
	var comments int64
	if err := db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&comments).Error; err != nil {
		return err
	}

	return db.Model(&models.Post{}).Where("id = ?", postID).UpdateColumns(map[string]interface{}{
		"likes_count":    likes,
		"comments_count": comments,
	}).Error
}

// RecountRecent 校正最近 7 天和点赞最多的 30 篇帖子，返回处理数量
func (s *CounterService) RecountRecent(ctx context.Context) int {
	processed := make(map[string]bool)
	db := s.db.WithContext(ctx)

	var recent []string
	db.Model(&models.Post{}).
		Where("created_at >= ? AND status <> ?", time.Now().AddDate(0, 0, -7), models.PostStatusDeleted).
		Pluck("id", &recent)

	var top []string
	db.Model(&models.Post{}).
		Where("status <> ?", models.PostStatusDeleted).
		Order("likes_count DESC").
		Limit(30).
		Pluck("id", &top)

	for _, id := range append(recent, top...) {
		if processed[id] {
			continue
		}
		processed[id] = true
		if err := s.Recount(ctx, id); err != nil {
			s.log.Error().Err(err).Str("post_id", id).Msg("recount failed")
		}
	}

	s.log.Info().Int("count", len(processed)).Msg("recounted post counters")
	return len(processed)
}
