package models

import (
	"time"
)

const (
	EventStatusUpcoming  = "upcoming"
	EventStatusOngoing   = "ongoing"
	EventStatusCompleted = "completed"
	EventStatusCancelled = "cancelled"
)

// Event 球迷活动
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	EventDate   time.Time `gorm:"index" json:"event_date"`
	Location    string    `json:"location"`
	ImageURL    string    `json:"image_url,omitempty"`
	Status      string    `gorm:"size:10;default:'upcoming';not null" json:"status"`
	CreatedBy   string    `gorm:"size:36" json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	MatchStatusScheduled = "scheduled"
	MatchStatusLive      = "live"
	MatchStatusFinished  = "finished"
)

// Match 比赛赛程与比分
type Match struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HomeTeam    string    `gorm:"not null" json:"home_team"`
	AwayTeam    string    `gorm:"not null" json:"away_team"`
	HomeScore   *int      `json:"home_score"`
	AwayScore   *int      `json:"away_score"`
	MatchDate   time.Time `gorm:"index" json:"match_date"`
	Competition string    `json:"competition"`
	Venue       string    `json:"venue"`
	Status      string    `gorm:"size:10;default:'scheduled';not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ValidEventStatus(status string) bool {
	switch status {
	case EventStatusUpcoming, EventStatusOngoing, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

func ValidMatchStatus(status string) bool {
	switch status {
	case MatchStatusScheduled, MatchStatusLive, MatchStatusFinished:
		return true
	}
	return false
}
