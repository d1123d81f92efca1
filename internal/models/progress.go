package models

import "time"

// TopicProgress tracks a student's mastery of one topic in one subject
type TopicProgress struct {
	ID            int       `json:"id" db:"id"`
	UserID        int       `json:"user_id" db:"user_id"`
	Subject       string    `json:"subject" db:"subject"`
	Topic         string    `json:"topic" db:"topic"`
	MasteryScore  float64   `json:"mastery_score" db:"mastery_score"` // 0..1
	Attempts      int       `json:"attempts" db:"attempts"`
	LastPracticed time.Time `json:"last_practiced" db:"last_practiced"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// SubjectSummary aggregates progress across one subject
type SubjectSummary struct {
	Subject        string  `json:"subject"`
	AverageMastery float64 `json:"average_mastery"`
	TopicCount     int     `json:"topic_count"`
	TotalAttempts  int     `json:"total_attempts"`
}

// ProgressSummary is the per-user overview returned by the progress API
type ProgressSummary struct {
	Subjects       []SubjectSummary `json:"subjects"`
	StrongestTopic *TopicProgress   `json:"strongest_topic,omitempty"`
	WeakestTopic   *TopicProgress   `json:"weakest_topic,omitempty"`
	Achievements   []Achievement    `json:"achievements"`
}

// AchievementKey identifies an achievement type
type AchievementKey string

// Achievement keys awarded by the platform
const (
	AchievementFirstQuiz     AchievementKey = "first_quiz"
	AchievementFirstHomework AchievementKey = "first_homework"
	AchievementTopicMastered AchievementKey = "topic_mastered"
	AchievementFiveMastered  AchievementKey = "five_topics_mastered"
	AchievementWeekStreak    AchievementKey = "week_streak"
)

// Achievement is an earned milestone
type Achievement struct {
	ID       int            `json:"id" db:"id"`
	UserID   int            `json:"user_id" db:"user_id"`
	Key      AchievementKey `json:"key" db:"achievement_key"`
	Title    string         `json:"title" db:"title"`
	EarnedAt time.Time      `json:"earned_at" db:"earned_at"`
}

// PracticeEvent records one scored practice outcome feeding the
// mastery update
type PracticeEvent struct {
	UserID  int
	Subject string
	Topic   string
	// Score is the normalized outcome in 0..1
	Score float64
}
