package services

import (
	"context"
	"database/sql"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// masteryAlpha is the weight a new practice outcome carries in the
// exponential moving average behind mastery_score
const masteryAlpha = 0.3

// masteredThreshold marks a topic as mastered for achievement purposes
const masteredThreshold = 0.8

// ProgressServiceInterface defines mastery tracking and achievements
type ProgressServiceInterface interface {
	RecordPractice(ctx context.Context, event *models.PracticeEvent) (*models.TopicProgress, error)
	ListProgress(ctx context.Context, userID int) ([]models.TopicProgress, error)
	GetTopic(ctx context.Context, userID int, subject, topic string) (*models.TopicProgress, error)
	Summary(ctx context.Context, userID int) (*models.ProgressSummary, error)
	AwardAchievement(ctx context.Context, userID int, key models.AchievementKey) (bool, error)
	ListAchievements(ctx context.Context, userID int) ([]models.Achievement, error)
}

// ProgressService tracks per-topic mastery and derives achievements.
// Mastery moves toward each new outcome with a fixed weight so a run of
// good scores raises it steadily without one result dominating.
type ProgressService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewProgressService creates a new progress service
func NewProgressService(db *sql.DB, logger *observability.Logger) *ProgressService {
	return &ProgressService{
		db:     db,
		logger: logger,
	}
}

var achievementTitles = map[models.AchievementKey]string{
	models.AchievementFirstQuiz:     "First Quiz Completed",
	models.AchievementFirstHomework: "First Homework Solved",
	models.AchievementTopicMastered: "Topic Mastered",
	models.AchievementFiveMastered:  "Five Topics Mastered",
	models.AchievementWeekStreak:    "Seven Day Streak",
}

// updatedMastery blends a new outcome into the existing mastery score
func updatedMastery(current float64, attempts int, score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if attempts == 0 {
		return score
	}
	next := current*(1-masteryAlpha) + score*masteryAlpha
	if next < 0 {
		return 0
	}
	if next > 1 {
		return 1
	}
	return next
}

// RecordPractice folds one practice outcome into the topic's mastery score
func (s *ProgressService) RecordPractice(ctx context.Context, event *models.PracticeEvent) (progress *models.TopicProgress, err error) {
	ctx, span := observability.TraceProgressFunction(ctx, "record_practice",
		observability.AttributeUserID(event.UserID),
		observability.AttributeSubject(event.Subject),
		observability.AttributeTopic(event.Topic),
	)
	defer observability.FinishSpan(span, &err)

	if event.Subject == "" || event.Topic == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "subject and topic are required")
	}

	existing, lookupErr := s.GetTopic(ctx, event.UserID, event.Subject, event.Topic)
	if lookupErr != nil && !contextutils.IsError(lookupErr, contextutils.ErrRecordNotFound) {
		return nil, lookupErr
	}

	var current float64
	var attempts int
	if existing != nil {
		current = existing.MasteryScore
		attempts = existing.Attempts
	}
	mastery := updatedMastery(current, attempts, event.Score)

	query := `
		INSERT INTO topic_progress (user_id, subject, topic, mastery_score, attempts, last_practiced)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (user_id, subject, topic)
		DO UPDATE SET mastery_score = $4, attempts = topic_progress.attempts + 1, last_practiced = NOW(), updated_at = NOW()
		RETURNING id, user_id, subject, topic, mastery_score, attempts, last_practiced, created_at, updated_at
	`

	progress = &models.TopicProgress{}
	err = s.db.QueryRowContext(ctx, query, event.UserID, event.Subject, event.Topic, mastery).Scan(
		&progress.ID,
		&progress.UserID,
		&progress.Subject,
		&progress.Topic,
		&progress.MasteryScore,
		&progress.Attempts,
		&progress.LastPracticed,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to record practice")
	}

	s.evaluateMasteryAchievements(ctx, event.UserID)

	span.SetAttributes(attribute.Float64("progress.mastery_score", progress.MasteryScore))
	return progress, nil
}

// evaluateMasteryAchievements awards threshold achievements, best effort
func (s *ProgressService) evaluateMasteryAchievements(ctx context.Context, userID int) {
	var mastered int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM topic_progress WHERE user_id = $1 AND mastery_score >= $2`,
		userID, masteredThreshold,
	).Scan(&mastered)
	if err != nil {
		s.logger.Warn(ctx, "Failed to count mastered topics", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}

	if mastered >= 1 {
		if _, awardErr := s.AwardAchievement(ctx, userID, models.AchievementTopicMastered); awardErr != nil {
			s.logger.Warn(ctx, "Failed to award achievement", map[string]interface{}{
				"user_id": userID,
				"error":   awardErr.Error(),
			})
		}
	}
	if mastered >= 5 {
		if _, awardErr := s.AwardAchievement(ctx, userID, models.AchievementFiveMastered); awardErr != nil {
			s.logger.Warn(ctx, "Failed to award achievement", map[string]interface{}{
				"user_id": userID,
				"error":   awardErr.Error(),
			})
		}
	}

	var streakDays int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT DATE(last_practiced))
		FROM topic_progress
		WHERE user_id = $1 AND last_practiced > NOW() - INTERVAL '7 days'
	`, userID).Scan(&streakDays)
	if err == nil && streakDays >= 7 {
		if _, awardErr := s.AwardAchievement(ctx, userID, models.AchievementWeekStreak); awardErr != nil {
			s.logger.Warn(ctx, "Failed to award streak achievement", map[string]interface{}{
				"user_id": userID,
				"error":   awardErr.Error(),
			})
		}
	}
}

// AwardAchievement awards an achievement once. Returns whether it was
// newly earned.
func (s *ProgressService) AwardAchievement(ctx context.Context, userID int, key models.AchievementKey) (awarded bool, err error) {
	ctx, span := observability.TraceProgressFunction(ctx, "award_achievement",
		observability.AttributeUserID(userID),
		attribute.String("progress.achievement", string(key)),
	)
	defer observability.FinishSpan(span, &err)

	title, ok := achievementTitles[key]
	if !ok {
		return false, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown achievement %q", key)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (user_id, achievement_key, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_key) DO NOTHING
	`, userID, key, title)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to award achievement")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected > 0 {
		s.logger.Info(ctx, "Achievement earned", map[string]interface{}{
			"user_id":     userID,
			"achievement": string(key),
		})
	}
	return affected > 0, nil
}

// ListProgress returns all topic progress rows for a user
func (s *ProgressService) ListProgress(ctx context.Context, userID int) (progress []models.TopicProgress, err error) {
	ctx, span := observability.TraceProgressFunction(ctx, "list_progress",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, user_id, subject, topic, mastery_score, attempts, last_practiced, created_at, updated_at
		FROM topic_progress
		WHERE user_id = $1
		ORDER BY subject, topic
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query progress")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close progress rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	progress = []models.TopicProgress{}
	for rows.Next() {
		var row models.TopicProgress
		if scanErr := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.Subject,
			&row.Topic,
			&row.MasteryScore,
			&row.Attempts,
			&row.LastPracticed,
			&row.CreatedAt,
			&row.UpdatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan progress row")
		}
		progress = append(progress, row)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate progress rows")
	}

	return progress, nil
}

// GetTopic returns one topic's progress for a user
func (s *ProgressService) GetTopic(ctx context.Context, userID int, subject, topic string) (progress *models.TopicProgress, err error) {
	query := `
		SELECT id, user_id, subject, topic, mastery_score, attempts, last_practiced, created_at, updated_at
		FROM topic_progress
		WHERE user_id = $1 AND subject = $2 AND topic = $3
	`

	progress = &models.TopicProgress{}
	err = s.db.QueryRowContext(ctx, query, userID, subject, topic).Scan(
		&progress.ID,
		&progress.UserID,
		&progress.Subject,
		&progress.Topic,
		&progress.MasteryScore,
		&progress.Attempts,
		&progress.LastPracticed,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "no progress for %s/%s", subject, topic)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load topic progress")
	}
	return progress, nil
}

// summarizeProgress aggregates topic rows into the per-subject overview
func summarizeProgress(rows []models.TopicProgress) *models.ProgressSummary {
	summary := &models.ProgressSummary{
		Subjects:     []models.SubjectSummary{},
		Achievements: []models.Achievement{},
	}

	bySubject := map[string]*models.SubjectSummary{}
	order := []string{}
	for i := range rows {
		row := &rows[i]
		subject, ok := bySubject[row.Subject]
		if !ok {
			subject = &models.SubjectSummary{Subject: row.Subject}
			bySubject[row.Subject] = subject
			order = append(order, row.Subject)
		}
		subject.AverageMastery += row.MasteryScore
		subject.TopicCount++
		subject.TotalAttempts += row.Attempts

		if summary.StrongestTopic == nil || row.MasteryScore > summary.StrongestTopic.MasteryScore {
			summary.StrongestTopic = row
		}
		if summary.WeakestTopic == nil || row.MasteryScore < summary.WeakestTopic.MasteryScore {
			summary.WeakestTopic = row
		}
	}

	for _, name := range order {
		subject := bySubject[name]
		subject.AverageMastery /= float64(subject.TopicCount)
		summary.Subjects = append(summary.Subjects, *subject)
	}
	return summary
}

// Summary returns the per-subject overview with achievements
func (s *ProgressService) Summary(ctx context.Context, userID int) (summary *models.ProgressSummary, err error) {
	ctx, span := observability.TraceProgressFunction(ctx, "summary",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.ListProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary = summarizeProgress(rows)

	achievements, err := s.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.Achievements = achievements

	return summary, nil
}

// ListAchievements returns a user's earned achievements, newest first
func (s *ProgressService) ListAchievements(ctx context.Context, userID int) (achievements []models.Achievement, err error) {
	query := `
		SELECT id, user_id, achievement_key, title, earned_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query achievements")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close achievement rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	achievements = []models.Achievement{}
	for rows.Next() {
		var achievement models.Achievement
		if scanErr := rows.Scan(
			&achievement.ID,
			&achievement.UserID,
			&achievement.Key,
			&achievement.Title,
			&achievement.EarnedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan achievement row")
		}
		achievements = append(achievements, achievement)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate achievement rows")
	}

	return achievements, nil
}
