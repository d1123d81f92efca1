// Package main provides a CLI tool for generating a quiz template for a teacher account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
)

// generationTimeout bounds a single CLI generation run.
const generationTimeout = 3 * time.Minute

func main() {
	ctx := context.Background()

	var (
		username   = flag.String("username", "", "Teacher username the quiz is created for (required)")
		subject    = flag.String("subject", "", "Subject for the quiz (required)")
		topic      = flag.String("topic", "", "Topic for the quiz (required)")
		count      = flag.Int("count", 10, "Number of questions to generate")
		difficulty = flag.String("difficulty", "", "Difficulty hint for generation (optional)")
		marksEach  = flag.Int("marks-each", 0, "Marks per question (optional)")
		help       = flag.Bool("help", false, "Show help message")
	)

	flag.Parse()

	if *help {
		printUsage()
		return
	}

	if *username == "" || *subject == "" || *topic == "" {
		fmt.Fprintln(os.Stderr, "Error: --username, --subject and --topic flags are required")
		os.Exit(1)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "learnapp-quizgen")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := observability.ShutdownTracerProvider(context.TODO(), tp); err != nil {
			logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	logger.Info(ctx, "Starting quiz generation CLI", map[string]interface{}{
		"username": *username,
		"subject":  *subject,
		"topic":    *topic,
		"count":    *count,
	})

	dbManager := database.NewManager(logger)

	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	userService := services.NewUserService(db, logger)

	user, err := userService.GetUserByUsername(ctx, *username)
	if err != nil {
		logger.Error(ctx, "Failed to get user", err)
		fmt.Fprintf(os.Stderr, "Failed to get user: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		logger.Error(ctx, "User not found", nil, map[string]interface{}{"username": *username})
		fmt.Fprintf(os.Stderr, "User not found: %s\n", *username)
		os.Exit(1)
		return
	}

	isTeacher, err := userService.IsTeacher(ctx, user.ID)
	if err != nil {
		logger.Error(ctx, "Failed to check user role", err, map[string]interface{}{"user_id": user.ID})
		fmt.Fprintf(os.Stderr, "Failed to check user role: %v\n", err)
		os.Exit(1)
	}
	isAdmin, err := userService.IsAdmin(ctx, user.ID)
	if err != nil {
		logger.Error(ctx, "Failed to check user role", err, map[string]interface{}{"user_id": user.ID})
		fmt.Fprintf(os.Stderr, "Failed to check user role: %v\n", err)
		os.Exit(1)
	}
	if !isTeacher && !isAdmin {
		fmt.Fprintf(os.Stderr, "User %s is not a teacher or admin\n", user.Username)
		os.Exit(1)
	}

	geminiService, err := services.NewGeminiService(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "Failed to initialize gemini service", err, nil)
		fmt.Fprintf(os.Stderr, "Failed to initialize gemini service: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := geminiService.Shutdown(context.TODO()); err != nil {
			logger.Warn(ctx, "Failed to shut down gemini service", map[string]interface{}{"error": err.Error()})
		}
	}()

	quizService := services.NewQuizService(db, geminiService, &cfg.Quiz, logger)

	fmt.Printf("=== Quiz Generation ===\n")
	fmt.Printf("Teacher: %s (ID: %d)\n", user.Username, user.ID)
	fmt.Printf("Subject: %s\n", *subject)
	fmt.Printf("Topic: %s\n", *topic)
	fmt.Printf("Count: %d\n", *count)
	if *difficulty != "" {
		fmt.Printf("Difficulty: %s\n", *difficulty)
	}
	fmt.Printf("=======================\n\n")

	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	startTime := time.Now()
	template, err := quizService.GenerateTemplate(genCtx, user.ID, &models.GenerateQuizRequest{
		Subject:       *subject,
		Topic:         *topic,
		QuestionCount: *count,
		Difficulty:    *difficulty,
		MarksEach:     *marksEach,
	})
	duration := time.Since(startTime)

	if err != nil {
		fmt.Printf("Quiz generation failed after %v\n", duration)
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Quiz generated in %v\n\n", duration)
	fmt.Printf("Template #%d: %s (%d questions, %d marks)\n", template.ID, template.Title, len(template.Questions), template.TotalMarks)
	for _, q := range template.Questions {
		fmt.Printf("  %d. %s [%d marks]\n", q.Number, q.Text, q.Marks)
		for i, opt := range q.Options {
			marker := " "
			if i == q.CorrectOption {
				marker = "*"
			}
			fmt.Printf("     %s %s\n", marker, opt)
		}
	}

	logger.Info(ctx, "Quiz generation completed", map[string]interface{}{
		"template_id": template.ID,
		"questions":   len(template.Questions),
		"duration_ms": duration.Milliseconds(),
	})
}

func printUsage() {
	fmt.Printf("Usage: quizgen [flags]\n")
	fmt.Printf("Flags:\n")
	fmt.Printf("  -username string\tTeacher username the quiz is created for (required)\n")
	fmt.Printf("  -subject string\tSubject for the quiz (required)\n")
	fmt.Printf("  -topic string\tTopic for the quiz (required)\n")
	fmt.Printf("  -count int\tNumber of questions to generate (default 10)\n")
	fmt.Printf("  -difficulty string\tDifficulty hint for generation\n")
	fmt.Printf("  -marks-each int\tMarks per question\n")
	fmt.Printf("  -help\tShow this help message\n\n")
	fmt.Printf("Subjects are free-form; use the ones your class content uses, e.g. %s\n", strings.Join([]string{"physics", "chemistry", "mathematics", "biology"}, ", "))
}
