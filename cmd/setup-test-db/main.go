// Package main provides a utility to set up the test database with initial data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// TestUser represents a user in the test data files
type TestUser struct {
	Username string   `yaml:"username"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Grade    string   `yaml:"grade"`
	School   string   `yaml:"school"`
	Roles    []string `yaml:"roles"`
}

// TestUsers represents a collection of test users
type TestUsers struct {
	Users []TestUser `yaml:"users"`
}

// TestSchools represents a collection of test schools
type TestSchools struct {
	Schools []struct {
		Name  string `yaml:"name"`
		City  string `yaml:"city"`
		State string `yaml:"state"`
		Board string `yaml:"board"`
	} `yaml:"schools"`
}

// TestContent represents uploaded study material in the test data files
type TestContent struct {
	Items []struct {
		Uploader string `yaml:"uploader"`
		Subject  string `yaml:"subject"`
		Title    string `yaml:"title"`
		Folder   string `yaml:"folder"`
		Body     string `yaml:"body"`
	} `yaml:"content"`
}

// TestQuizQuestion mirrors models.QuizQuestion with YAML field names
type TestQuizQuestion struct {
	Number        int      `yaml:"number"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectOption int      `yaml:"correct_option"`
	Marks         int      `yaml:"marks"`
	Explanation   string   `yaml:"explanation"`
}

// TestQuizzes represents quiz templates in the test data files
type TestQuizzes struct {
	Quizzes []struct {
		Creator   string             `yaml:"creator"`
		Subject   string             `yaml:"subject"`
		Topic     string             `yaml:"topic"`
		Title     string             `yaml:"title"`
		Questions []TestQuizQuestion `yaml:"questions"`
	} `yaml:"quizzes"`
}

// TestNotifications represents seeded notifications in the test data files
type TestNotifications struct {
	Notifications []struct {
		Sender    string `yaml:"sender"`
		Recipient string `yaml:"recipient"`
		Title     string `yaml:"title"`
		Message   string `yaml:"message"`
		Type      string `yaml:"type"`
	} `yaml:"notifications"`
}

func main() {
	ctx := context.Background()

	dataDir := flag.String("data-dir", "data", "Directory containing test data YAML files")
	reset := flag.Bool("reset", false, "Drop and recreate the schema before seeding")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	logger := observability.NewLogger(&cfg.OpenTelemetry)

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database", map[string]interface{}{"error": err.Error()})
		}
	}()

	if *reset {
		logger.Info(ctx, "Resetting schema before seeding", nil)
		if _, err := db.ExecContext(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public"); err != nil {
			logger.Error(ctx, "Failed to drop schema", err, nil)
			os.Exit(1)
		}
	}

	if err := dbManager.RunMigrations(db); err != nil {
		logger.Error(ctx, "Failed to run migrations", err, nil)
		os.Exit(1)
	}

	if err := seed(ctx, cfg, db, *dataDir, logger); err != nil {
		logger.Error(ctx, "Seeding failed", err, nil)
		os.Exit(1)
	}

	fmt.Println("Test database ready.")
}

// seed loads the YAML data files and creates the test fixtures
func seed(ctx context.Context, cfg *config.Config, db *sql.DB, dataDir string, logger *observability.Logger) error {
	userService := services.NewUserService(db, logger)
	contentService := services.NewContentService(db, nil, nil, &cfg.Embedding, logger)
	quizService := services.NewQuizService(db, nil, &cfg.Quiz, logger)
	notificationService := services.NewNotificationService(db, logger)

	schoolIDs, err := seedSchools(ctx, db, filepath.Join(dataDir, "test_schools.yaml"), logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to seed schools")
	}

	userIDs, err := seedUsers(ctx, db, userService, filepath.Join(dataDir, "test_users.yaml"), schoolIDs, logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to seed users")
	}

	if err := seedContent(ctx, contentService, filepath.Join(dataDir, "test_content.yaml"), userIDs, logger); err != nil {
		return contextutils.WrapError(err, "failed to seed content")
	}

	if err := seedQuizzes(ctx, quizService, filepath.Join(dataDir, "test_quizzes.yaml"), userIDs, logger); err != nil {
		return contextutils.WrapError(err, "failed to seed quizzes")
	}

	if err := seedNotifications(ctx, notificationService, filepath.Join(dataDir, "test_notifications.yaml"), userIDs, logger); err != nil {
		return contextutils.WrapError(err, "failed to seed notifications")
	}

	return nil
}

// loadYAML reads a YAML file into out; a missing file is not an error
func loadYAML(filePath string, out interface{}) (bool, error) {
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, contextutils.WrapErrorf(err, "failed to parse %s", filePath)
	}
	return true, nil
}

func seedSchools(ctx context.Context, db *sql.DB, filePath string, logger *observability.Logger) (map[string]int32, error) {
	var schools TestSchools
	found, err := loadYAML(filePath, &schools)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int32)
	if !found {
		return ids, nil
	}

	for _, s := range schools.Schools {
		var id int32
		err := db.QueryRowContext(ctx, `
			INSERT INTO schools (name, city, state, board)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, s.Name, nullable(s.City), nullable(s.State), nullable(s.Board)).Scan(&id)
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to create school '%s'", s.Name)
		}
		ids[s.Name] = id
	}

	logger.Info(ctx, "Seeded schools", map[string]interface{}{"count": len(ids)})
	return ids, nil
}

func seedUsers(ctx context.Context, db *sql.DB, userService *services.UserService, filePath string, schoolIDs map[string]int32, logger *observability.Logger) (map[string]int, error) {
	var users TestUsers
	found, err := loadYAML(filePath, &users)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int)
	if !found {
		logger.Warn(ctx, "No test users file found", map[string]interface{}{"path": filePath})
		return ids, nil
	}

	for _, tu := range users.Users {
		roles := tu.Roles
		if len(roles) == 0 {
			roles = []string{string(models.RoleStudent)}
		}

		user, err := userService.CreateUserWithRole(ctx, tu.Username, tu.Email, tu.Password, models.RoleName(roles[0]))
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to create user '%s'", tu.Username)
		}
		ids[tu.Username] = user.ID

		for _, role := range roles[1:] {
			if err := userService.AssignRoleByName(ctx, user.ID, role); err != nil {
				return nil, contextutils.WrapErrorf(err, "failed to assign role '%s' to '%s'", role, tu.Username)
			}
		}

		if tu.Grade != "" || tu.School != "" {
			var schoolID interface{}
			if id, ok := schoolIDs[tu.School]; ok {
				schoolID = id
			}
			if _, err := db.ExecContext(ctx,
				`UPDATE users SET grade = $1, school_id = $2, updated_at = NOW() WHERE id = $3`,
				nullable(tu.Grade), schoolID, user.ID); err != nil {
				return nil, contextutils.WrapErrorf(err, "failed to set profile for '%s'", tu.Username)
			}
		}
	}

	logger.Info(ctx, "Seeded users", map[string]interface{}{"count": len(ids)})
	return ids, nil
}

func seedContent(ctx context.Context, contentService *services.ContentService, filePath string, userIDs map[string]int, logger *observability.Logger) error {
	var content TestContent
	found, err := loadYAML(filePath, &content)
	if err != nil || !found {
		return err
	}

	for _, item := range content.Items {
		uploaderID, ok := userIDs[item.Uploader]
		if !ok {
			return contextutils.ErrorWithContextf("content item '%s' references unknown uploader '%s'", item.Title, item.Uploader)
		}

		_, err := contentService.Upload(ctx, uploaderID, &models.UploadContentRequest{
			Subject: item.Subject,
			Title:   item.Title,
			Folder:  item.Folder,
			Body:    item.Body,
		})
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to upload content '%s'", item.Title)
		}
	}

	logger.Info(ctx, "Seeded content", map[string]interface{}{"count": len(content.Items)})
	return nil
}

func seedQuizzes(ctx context.Context, quizService *services.QuizService, filePath string, userIDs map[string]int, logger *observability.Logger) error {
	var quizzes TestQuizzes
	found, err := loadYAML(filePath, &quizzes)
	if err != nil || !found {
		return err
	}

	for _, quiz := range quizzes.Quizzes {
		creatorID, ok := userIDs[quiz.Creator]
		if !ok {
			return contextutils.ErrorWithContextf("quiz '%s' references unknown creator '%s'", quiz.Title, quiz.Creator)
		}

		questions := make([]models.QuizQuestion, len(quiz.Questions))
		for i, q := range quiz.Questions {
			questions[i] = models.QuizQuestion{
				Number:        q.Number,
				Text:          q.Text,
				Options:       q.Options,
				CorrectOption: q.CorrectOption,
				Marks:         q.Marks,
				Explanation:   q.Explanation,
			}
		}

		_, err := quizService.CreateTemplate(ctx, creatorID, &models.CreateQuizTemplateRequest{
			Subject:   quiz.Subject,
			Topic:     quiz.Topic,
			Title:     quiz.Title,
			Questions: questions,
		})
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to create quiz '%s'", quiz.Title)
		}
	}

	logger.Info(ctx, "Seeded quizzes", map[string]interface{}{"count": len(quizzes.Quizzes)})
	return nil
}

func seedNotifications(ctx context.Context, notificationService *services.NotificationService, filePath string, userIDs map[string]int, logger *observability.Logger) error {
	var notifications TestNotifications
	found, err := loadYAML(filePath, &notifications)
	if err != nil || !found {
		return err
	}

	for _, n := range notifications.Notifications {
		senderID, ok := userIDs[n.Sender]
		if !ok {
			return contextutils.ErrorWithContextf("notification '%s' references unknown sender '%s'", n.Title, n.Sender)
		}
		recipientID, ok := userIDs[n.Recipient]
		if !ok {
			return contextutils.ErrorWithContextf("notification '%s' references unknown recipient '%s'", n.Title, n.Recipient)
		}

		_, err := notificationService.Create(ctx, senderID, &models.CreateNotificationRequest{
			UserID:  recipientID,
			Title:   n.Title,
			Message: n.Message,
			Type:    models.NotificationType(n.Type),
		})
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to create notification '%s'", n.Title)
		}
	}

	logger.Info(ctx, "Seeded notifications", map[string]interface{}{"count": len(notifications.Notifications)})
	return nil
}

// nullable converts an empty string to a SQL NULL
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
