package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/middleware"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSessionSecret = "test-secret"
	testSessionName   = "test-session"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

// newSessionRouter builds a bare test router with cookie sessions attached,
// matching the session setup the real router uses.
func newSessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte(testSessionSecret))
	router.Use(sessions.Sessions(testSessionName, store))
	return router
}

// authSessionCookie mints a session cookie for the given user so requests
// can exercise handlers that read the session directly.
func authSessionCookie(t *testing.T, userID int) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	session, err := cookie.NewStore([]byte(testSessionSecret)).Get(req, testSessionName)
	require.NoError(t, err)
	session.Values[middleware.UserIDKey] = userID
	session.Values[middleware.UsernameKey] = "testuser"
	require.NoError(t, session.Save(req, w))
	return w.Header().Get("Set-Cookie")
}

// MockUserService implements services.UserServiceInterface for testing
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUser(ctx context.Context, req *models.SignupRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) CreateUserWithRole(ctx context.Context, username, email, password string, role models.RoleName) (*models.User, error) {
	args := m.Called(ctx, username, email, password, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateUserProfile(ctx context.Context, userID int, req *models.UpdateProfileRequest) error {
	args := m.Called(ctx, userID, req)
	return args.Error(0)
}

func (m *MockUserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) error {
	args := m.Called(ctx, userID, newPassword)
	return args.Error(0)
}

func (m *MockUserService) UpdateLastActive(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) GetUsersPaginated(ctx context.Context, page, pageSize int, search, role, grade string) ([]models.User, int, error) {
	args := m.Called(ctx, page, pageSize, search, role, grade)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.User), args.Int(1), args.Error(2)
}

func (m *MockUserService) DeleteUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error {
	args := m.Called(ctx, adminUsername, adminPassword)
	return args.Error(0)
}

func (m *MockUserService) GetUserRoles(ctx context.Context, userID int) ([]models.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Role), args.Error(1)
}

func (m *MockUserService) GetAllRoles(ctx context.Context) ([]models.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Role), args.Error(1)
}

func (m *MockUserService) AssignRoleByName(ctx context.Context, userID int, roleName string) error {
	args := m.Called(ctx, userID, roleName)
	return args.Error(0)
}

func (m *MockUserService) RemoveRoleByName(ctx context.Context, userID int, roleName string) error {
	args := m.Called(ctx, userID, roleName)
	return args.Error(0)
}

func (m *MockUserService) HasRole(ctx context.Context, userID int, roleName string) (bool, error) {
	args := m.Called(ctx, userID, roleName)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserService) IsAdmin(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserService) IsTeacher(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserService) GetDB() *sql.DB {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*sql.DB)
}

// MockDoubtService implements services.DoubtServiceInterface for testing
type MockDoubtService struct {
	mock.Mock
}

func (m *MockDoubtService) AskText(ctx context.Context, userID int, req *models.TextDoubtRequest) (*models.DoubtAnswer, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DoubtAnswer), args.Error(1)
}

func (m *MockDoubtService) AskImage(ctx context.Context, userID int, subject, prompt string, image []byte, mimeType string) (*models.DoubtAnswer, error) {
	args := m.Called(ctx, userID, subject, prompt, image, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DoubtAnswer), args.Error(1)
}

func (m *MockDoubtService) AskVoice(ctx context.Context, userID int, subject string, audio []byte, mimeType string) (*models.DoubtAnswer, error) {
	args := m.Called(ctx, userID, subject, audio, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DoubtAnswer), args.Error(1)
}

func (m *MockDoubtService) History(ctx context.Context, userID, limit, offset int) ([]models.Doubt, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Doubt), args.Error(1)
}

func (m *MockDoubtService) WolframChat(ctx context.Context, query string) *models.WolframChatResponse {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.WolframChatResponse)
}

// MockHomeworkService implements services.HomeworkServiceInterface for testing
type MockHomeworkService struct {
	mock.Mock
}

func (m *MockHomeworkService) StartSession(ctx context.Context, userID int, req *models.StartHomeworkRequest) (*models.HomeworkSession, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HomeworkSession), args.Error(1)
}

func (m *MockHomeworkService) RevealHint(ctx context.Context, userID, sessionID, level int) (*models.HomeworkHint, error) {
	args := m.Called(ctx, userID, sessionID, level)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HomeworkHint), args.Error(1)
}

func (m *MockHomeworkService) SubmitAttempt(ctx context.Context, userID, sessionID int, answer string) (*models.AttemptEvaluation, error) {
	args := m.Called(ctx, userID, sessionID, answer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AttemptEvaluation), args.Error(1)
}

func (m *MockHomeworkService) GetSession(ctx context.Context, userID, sessionID int) (*models.HomeworkSession, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HomeworkSession), args.Error(1)
}

func (m *MockHomeworkService) ListSessions(ctx context.Context, userID, limit, offset int) ([]models.HomeworkSession, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HomeworkSession), args.Error(1)
}

func (m *MockHomeworkService) ExpireStaleSessions(ctx context.Context, abandonedAfter time.Duration) (int64, error) {
	args := m.Called(ctx, abandonedAfter)
	return args.Get(0).(int64), args.Error(1)
}

// MockQuizService implements services.QuizServiceInterface for testing
type MockQuizService struct {
	mock.Mock
}

func (m *MockQuizService) CreateTemplate(ctx context.Context, teacherID int, req *models.CreateQuizTemplateRequest) (*models.QuizTemplate, error) {
	args := m.Called(ctx, teacherID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizTemplate), args.Error(1)
}

func (m *MockQuizService) GenerateTemplate(ctx context.Context, teacherID int, req *models.GenerateQuizRequest) (*models.QuizTemplate, error) {
	args := m.Called(ctx, teacherID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizTemplate), args.Error(1)
}

func (m *MockQuizService) ListTemplates(ctx context.Context, subject string, limit, offset int) ([]models.QuizTemplate, error) {
	args := m.Called(ctx, subject, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QuizTemplate), args.Error(1)
}

func (m *MockQuizService) GetTemplate(ctx context.Context, templateID int) (*models.QuizTemplate, error) {
	args := m.Called(ctx, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizTemplate), args.Error(1)
}

func (m *MockQuizService) StartSession(ctx context.Context, userID, templateID int) (*models.QuizSession, error) {
	args := m.Called(ctx, userID, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizSession), args.Error(1)
}

func (m *MockQuizService) SaveAnswer(ctx context.Context, userID int, req *models.QuizAnswerRequest) (*models.QuizSession, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizSession), args.Error(1)
}

func (m *MockQuizService) Submit(ctx context.Context, userID, sessionID int) (*models.QuizResult, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizResult), args.Error(1)
}

func (m *MockQuizService) GetSession(ctx context.Context, userID, sessionID int) (*models.QuizSession, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizSession), args.Error(1)
}

func (m *MockQuizService) ListTemplateSessions(ctx context.Context, templateID, limit, offset int) ([]models.QuizSession, error) {
	args := m.Called(ctx, templateID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QuizSession), args.Error(1)
}

// MockProgressService implements services.ProgressServiceInterface for testing
type MockProgressService struct {
	mock.Mock
}

func (m *MockProgressService) RecordPractice(ctx context.Context, event *models.PracticeEvent) (*models.TopicProgress, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TopicProgress), args.Error(1)
}

func (m *MockProgressService) ListProgress(ctx context.Context, userID int) ([]models.TopicProgress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TopicProgress), args.Error(1)
}

func (m *MockProgressService) GetTopic(ctx context.Context, userID int, subject, topic string) (*models.TopicProgress, error) {
	args := m.Called(ctx, userID, subject, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TopicProgress), args.Error(1)
}

func (m *MockProgressService) Summary(ctx context.Context, userID int) (*models.ProgressSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressSummary), args.Error(1)
}

func (m *MockProgressService) AwardAchievement(ctx context.Context, userID int, key models.AchievementKey) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockProgressService) ListAchievements(ctx context.Context, userID int) ([]models.Achievement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Achievement), args.Error(1)
}

// MockMessagesService implements services.MessagesServiceInterface for testing
type MockMessagesService struct {
	mock.Mock
}

func (m *MockMessagesService) GetOrCreateConversation(ctx context.Context, userID, otherID int) (*models.Conversation, error) {
	args := m.Called(ctx, userID, otherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockMessagesService) ListConversations(ctx context.Context, userID, limit, offset int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockMessagesService) SendMessage(ctx context.Context, senderID int, req *models.SendMessageRequest) (*models.Message, error) {
	args := m.Called(ctx, senderID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessagesService) ListMessages(ctx context.Context, userID, conversationID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, userID, conversationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessagesService) MarkRead(ctx context.Context, userID, conversationID int) (int64, error) {
	args := m.Called(ctx, userID, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessagesService) ImproveMessage(ctx context.Context, req *models.ImproveMessageRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockMessagesService) SuggestReplies(ctx context.Context, userID, conversationID int) ([]string, error) {
	args := m.Called(ctx, userID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockNotificationService implements services.NotificationServiceInterface for testing
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Create(ctx context.Context, createdBy int, req *models.CreateNotificationRequest) (*models.Notification, error) {
	args := m.Called(ctx, createdBy, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockNotificationService) Broadcast(ctx context.Context, createdBy int, userIDs []int, req *models.CreateNotificationRequest) (int, error) {
	args := m.Called(ctx, createdBy, userIDs, req)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) List(ctx context.Context, userID int, filters *models.NotificationFilters) ([]models.Notification, error) {
	args := m.Called(ctx, userID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, userID, notificationID int) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, userID int) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationService) Dismiss(ctx context.Context, userID, notificationID int) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}

func (m *MockNotificationService) ListCreatedBy(ctx context.Context, creatorID, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, creatorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

// MockTeacherService implements services.TeacherServiceInterface for testing
type MockTeacherService struct {
	mock.Mock
}

func (m *MockTeacherService) GenerateLessonPlan(ctx context.Context, teacherID int, req *models.GenerateLessonPlanRequest) (*models.LessonPlan, error) {
	args := m.Called(ctx, teacherID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LessonPlan), args.Error(1)
}

func (m *MockTeacherService) GenerateAssessment(ctx context.Context, teacherID int, req *models.GenerateAssessmentRequest) (*models.FormativeAssessment, error) {
	args := m.Called(ctx, teacherID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormativeAssessment), args.Error(1)
}

func (m *MockTeacherService) GenerateParentMessage(ctx context.Context, teacherID int, req *models.GenerateParentMessageRequest) (*models.ParentMessage, error) {
	args := m.Called(ctx, teacherID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ParentMessage), args.Error(1)
}

func (m *MockTeacherService) ListArtifacts(ctx context.Context, teacherID int, kind string, limit, offset int) ([]services.TeacherArtifact, error) {
	args := m.Called(ctx, teacherID, kind, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.TeacherArtifact), args.Error(1)
}

func (m *MockTeacherService) StudentRoster(ctx context.Context, teacherID int) ([]models.StudentPerformance, error) {
	args := m.Called(ctx, teacherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StudentPerformance), args.Error(1)
}

// MockContentService implements services.ContentServiceInterface for testing
type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) Upload(ctx context.Context, userID int, req *models.UploadContentRequest) (*models.ContentItem, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentItem), args.Error(1)
}

func (m *MockContentService) List(ctx context.Context, subject, folder string, limit, offset int) ([]models.ContentItem, error) {
	args := m.Called(ctx, subject, folder, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ContentItem), args.Error(1)
}

func (m *MockContentService) Get(ctx context.Context, id int) (*models.ContentItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentItem), args.Error(1)
}

func (m *MockContentService) Update(ctx context.Context, id int, req *models.UploadContentRequest) (*models.ContentItem, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentItem), args.Error(1)
}

func (m *MockContentService) Delete(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContentService) ListFolders(ctx context.Context, subject string) ([]string, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockContentService) IndexContent(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContentService) IndexPending(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockContentService) Query(ctx context.Context, req *models.ContentQueryRequest) (*models.RAGAnswer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RAGAnswer), args.Error(1)
}

// MockYouTubeService implements services.YouTubeServiceInterface for testing
type MockYouTubeService struct {
	mock.Mock
}

func (m *MockYouTubeService) SearchVideos(ctx context.Context, req *models.VideoSearchRequest) (*models.VideoSearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VideoSearchResponse), args.Error(1)
}

func (m *MockYouTubeService) QuotaExhausted() (bool, time.Time) {
	args := m.Called()
	return args.Bool(0), args.Get(1).(time.Time)
}

// MockAdminService implements services.AdminServiceInterface for testing
type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) DashboardMetrics(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockAdminService) StudentDetail(ctx context.Context, userID int) (map[string]interface{}, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockAdminService) ExportEntity(ctx context.Context, entity string) ([]map[string]interface{}, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}

func (m *MockAdminService) ExportableEntities() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockAdminService) CreateSchool(ctx context.Context, name, city, state, board string) (*models.School, error) {
	args := m.Called(ctx, name, city, state, board)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.School), args.Error(1)
}

func (m *MockAdminService) ListSchools(ctx context.Context) ([]models.School, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.School), args.Error(1)
}

func (m *MockAdminService) UpdateSchool(ctx context.Context, schoolID int, name, city, state, board string) (*models.School, error) {
	args := m.Called(ctx, schoolID, name, city, state, board)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.School), args.Error(1)
}

func (m *MockAdminService) DeleteSchool(ctx context.Context, schoolID int) error {
	args := m.Called(ctx, schoolID)
	return args.Error(0)
}

func (m *MockAdminService) AssignUserToSchool(ctx context.Context, userID, schoolID int) error {
	args := m.Called(ctx, userID, schoolID)
	return args.Error(0)
}

// MockWorkerService implements services.WorkerServiceInterface for testing
type MockWorkerService struct {
	mock.Mock
}

func (m *MockWorkerService) GetSetting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockWorkerService) SetSetting(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockWorkerService) IsGlobalPaused(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerService) SetGlobalPause(ctx context.Context, paused bool) error {
	args := m.Called(ctx, paused)
	return args.Error(0)
}

func (m *MockWorkerService) IsUserPaused(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerService) SetUserPause(ctx context.Context, userID int, paused bool) error {
	args := m.Called(ctx, userID, paused)
	return args.Error(0)
}

func (m *MockWorkerService) UpdateWorkerStatus(ctx context.Context, instance string, status *models.WorkerStatus) error {
	args := m.Called(ctx, instance, status)
	return args.Error(0)
}

func (m *MockWorkerService) GetWorkerStatus(ctx context.Context, instance string) (*models.WorkerStatus, error) {
	args := m.Called(ctx, instance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkerStatus), args.Error(1)
}

func (m *MockWorkerService) GetAllWorkerStatuses(ctx context.Context) ([]models.WorkerStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WorkerStatus), args.Error(1)
}

func (m *MockWorkerService) UpdateHeartbeat(ctx context.Context, instance string) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockWorkerService) IsWorkerHealthy(ctx context.Context, instance string) (bool, error) {
	args := m.Called(ctx, instance)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerService) PauseWorker(ctx context.Context, instance string) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockWorkerService) ResumeWorker(ctx context.Context, instance string) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockWorkerService) GetWorkerHealth(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockWorkerService) GetIndexingBacklog(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockWorkerService) GetDigestCandidates(ctx context.Context, limit int) ([]models.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockWorkerService) GetNotificationStats(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockWorkerService) GetSentNotifications(ctx context.Context, page, pageSize int, notificationType, status string) ([]map[string]interface{}, int, error) {
	args := m.Called(ctx, page, pageSize, notificationType, status)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]map[string]interface{}), args.Int(1), args.Error(2)
}

// MockGeminiService implements services.GeminiServiceInterface for testing
type MockGeminiService struct {
	mock.Mock
}

func (m *MockGeminiService) GenerateText(ctx context.Context, tier, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, tier, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

func (m *MockGeminiService) GenerateJSON(ctx context.Context, tier, systemPrompt, userPrompt string, out interface{}) error {
	args := m.Called(ctx, tier, systemPrompt, userPrompt, out)
	return args.Error(0)
}

func (m *MockGeminiService) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	args := m.Called(ctx, prompt, image, mimeType)
	return args.String(0), args.Error(1)
}

func (m *MockGeminiService) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	args := m.Called(ctx, audio, mimeType)
	return args.String(0), args.Error(1)
}

func (m *MockGeminiService) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	args := m.Called(ctx, texts, taskType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockGeminiService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockGeminiService) GetConcurrencyStats() services.ConcurrencyStats {
	args := m.Called()
	return args.Get(0).(services.ConcurrencyStats)
}

func (m *MockGeminiService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
