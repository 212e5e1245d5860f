package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rmashqip/internal/models"
)

func (c *Client) ListEvents(ctx context.Context, upcomingOnly bool) ([]models.Event, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Order("event_date ASC")
	if upcomingOnly {
		q = q.Where("event_date >= ? AND status = ?", time.Now(), models.EventStatusUpcoming)
	}
	var events []models.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	if err := db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id uint, event *models.Event) (*models.Event, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	var existing models.Event
	if err := db.First(&existing, id).Error; err != nil {
		return nil, notFound(err)
	}
	err = db.Model(&existing).Updates(map[string]interface{}{
		"title":       event.Title,
		"description": event.Description,
		"event_date":  event.EventDate,
		"location":    event.Location,
		"image_url":   event.ImageURL,
		"status":      event.Status,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return &existing, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id uint) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Delete(&models.Event{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) ListMatches(ctx context.Context, upcomingOnly bool) ([]models.Match, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Order("match_date ASC")
	if upcomingOnly {
		q = q.Where("match_date >= ? AND status = ?", time.Now(), models.MatchStatusScheduled)
	}
	var matches []models.Match
	if err := q.Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

func (c *Client) CreateMatch(ctx context.Context, match *models.Match) (*models.Match, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateMatch(match); err != nil {
		return nil, err
	}
	if err := db.Create(match).Error; err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	return match, nil
}

func (c *Client) UpdateMatch(ctx context.Context, id uint, match *models.Match) (*models.Match, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateMatch(match); err != nil {
		return nil, err
	}

	var existing models.Match
	if err := db.First(&existing, id).Error; err != nil {
		return nil, notFound(err)
	}
	err = db.Model(&existing).Updates(map[string]interface{}{
		"home_team":   match.HomeTeam,
		"away_team":   match.AwayTeam,
		"home_score":  match.HomeScore,
		"away_score":  match.AwayScore,
		"match_date":  match.MatchDate,
		"competition": match.Competition,
		"venue":       match.Venue,
		"status":      match.Status,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update match: %w", err)
	}
	return &existing, nil
}

func (c *Client) DeleteMatch(ctx context.Context, id uint) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Delete(&models.Match{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func validateEvent(e *models.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return fmt.Errorf("%w: event title", ErrInvalidInput)
	}
	if e.EventDate.IsZero() {
		return fmt.Errorf("%w: event date", ErrInvalidInput)
	}
	if e.Status == "" {
		e.Status = models.EventStatusUpcoming
	}
	if !models.ValidEventStatus(e.Status) {
		return fmt.Errorf("%w: event status %q", ErrInvalidInput, e.Status)
	}
	return nil
}

func validateMatch(m *models.Match) error {
	m.HomeTeam = strings.TrimSpace(m.HomeTeam)
	m.AwayTeam = strings.TrimSpace(m.AwayTeam)
	if m.HomeTeam == "" || m.AwayTeam == "" {
		return fmt.Errorf("%w: teams", ErrInvalidInput)
	}
	if m.MatchDate.IsZero() {
		return fmt.Errorf("%w: match date", ErrInvalidInput)
	}
	if m.Status == "" {
		m.Status = models.MatchStatusScheduled
	}
	if !models.ValidMatchStatus(m.Status) {
		return fmt.Errorf("%w: match status %q", ErrInvalidInput, m.Status)
	}
	return nil
}
