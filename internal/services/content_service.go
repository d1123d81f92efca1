package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultRAGTopK      = 5
	maxRAGTopK          = 20
	sourceExcerptLength = 240
)

// ContentServiceInterface defines methods for study material and retrieval queries
type ContentServiceInterface interface {
	Upload(ctx context.Context, userID int, req *models.UploadContentRequest) (*models.ContentItem, error)
	List(ctx context.Context, subject, folder string, limit, offset int) ([]models.ContentItem, error)
	Get(ctx context.Context, id int) (*models.ContentItem, error)
	Update(ctx context.Context, id int, req *models.UploadContentRequest) (*models.ContentItem, error)
	Delete(ctx context.Context, id int) error
	ListFolders(ctx context.Context, subject string) ([]string, error)
	IndexContent(ctx context.Context, id int) error
	IndexPending(ctx context.Context, limit int) (int, error)
	Query(ctx context.Context, req *models.ContentQueryRequest) (*models.RAGAnswer, error)
}

// ContentService manages uploaded study material and the RAG pipeline over it
type ContentService struct {
	db     *sql.DB
	gemini GeminiServiceInterface
	index  VectorIndex
	cfg    *config.EmbeddingConfig
	logger *observability.Logger
}

// NewContentService creates a new content service
func NewContentService(db *sql.DB, gemini GeminiServiceInterface, index VectorIndex, cfg *config.EmbeddingConfig, logger *observability.Logger) *ContentService {
	return &ContentService{
		db:     db,
		gemini: gemini,
		index:  index,
		cfg:    cfg,
		logger: logger,
	}
}

// chunkVectorID names the vector for one chunk of a content item
func chunkVectorID(contentID, ordinal int) string {
	return fmt.Sprintf("content_%d_chunk_%d", contentID, ordinal)
}

// namespaceForSubject maps a subject to its vector index namespace
func namespaceForSubject(subject string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(subject)), " ", "_")
}

func sourceExcerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= sourceExcerptLength {
		return text
	}
	return text[:sourceExcerptLength] + "..."
}

func (s *ContentService) chunkSize() int {
	if s.cfg != nil && s.cfg.ChunkSize > 0 {
		return s.cfg.ChunkSize
	}
	return defaultChunkSize
}

func (s *ContentService) chunkOverlap() int {
	if s.cfg != nil && s.cfg.ChunkOverlap > 0 {
		return s.cfg.ChunkOverlap
	}
	return defaultChunkOverlap
}

func (s *ContentService) topK(requested int) int {
	if requested > 0 && requested <= maxRAGTopK {
		return requested
	}
	if requested > maxRAGTopK {
		return maxRAGTopK
	}
	if s.cfg != nil && s.cfg.TopK > 0 {
		return s.cfg.TopK
	}
	return defaultRAGTopK
}

// Upload stores a new content item in the pending index state
func (s *ContentService) Upload(ctx context.Context, userID int, req *models.UploadContentRequest) (result0 *models.ContentItem, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "Upload",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(req.Subject),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "subject, title and body are required")
	}

	item := &models.ContentItem{
		UploadedBy:  userID,
		Subject:     req.Subject,
		Title:       req.Title,
		Body:        req.Body,
		IndexStatus: models.IndexPending,
	}
	if req.Folder != "" {
		item.Folder = sql.NullString{String: req.Folder, Valid: true}
	}

	query := `
		INSERT INTO content_items (uploaded_by, subject, title, folder, body, index_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		item.UploadedBy, item.Subject, item.Title, item.Folder, item.Body, item.IndexStatus,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create content item")
	}

	s.logger.Info(ctx, "Content uploaded", map[string]interface{}{
		"content_id": item.ID,
		"subject":    item.Subject,
	})
	return item, nil
}

// List returns content items, optionally filtered by subject and folder
func (s *ContentService) List(ctx context.Context, subject, folder string, limit, offset int) (result0 []models.ContentItem, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "List",
		observability.AttributeSubject(subject),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, uploaded_by, subject, title, folder, body, index_status, index_error, chunk_count, created_at, updated_at
		FROM content_items`
	args := []interface{}{}
	conditions := []string{}

	if subject != "" {
		args = append(args, subject)
		conditions = append(conditions, "subject = $"+strconv.Itoa(len(args)))
	}
	if folder != "" {
		args = append(args, folder)
		conditions = append(conditions, "folder = $"+strconv.Itoa(len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list content items")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	items := []models.ContentItem{}
	for rows.Next() {
		var item models.ContentItem
		if err := rows.Scan(
			&item.ID, &item.UploadedBy, &item.Subject, &item.Title, &item.Folder,
			&item.Body, &item.IndexStatus, &item.IndexError, &item.ChunkCount,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan content item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating content items")
	}
	return items, nil
}

// Get returns one content item by id
func (s *ContentService) Get(ctx context.Context, id int) (result0 *models.ContentItem, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "Get",
		observability.AttributeContentID(id),
	)
	defer observability.FinishSpan(span, &err)

	var item models.ContentItem
	query := `
		SELECT id, uploaded_by, subject, title, folder, body, index_status, index_error, chunk_count, created_at, updated_at
		FROM content_items
		WHERE id = $1`

	err = s.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.UploadedBy, &item.Subject, &item.Title, &item.Folder,
		&item.Body, &item.IndexStatus, &item.IndexError, &item.ChunkCount,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "content item %d not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get content item")
	}
	return &item, nil
}

// Update replaces the editable fields of a content item and resets it to the
// pending index state since the body may have changed
func (s *ContentService) Update(ctx context.Context, id int, req *models.UploadContentRequest) (result0 *models.ContentItem, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "Update",
		observability.AttributeContentID(id),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "subject, title and body are required")
	}

	folder := sql.NullString{}
	if req.Folder != "" {
		folder = sql.NullString{String: req.Folder, Valid: true}
	}

	var item models.ContentItem
	query := `
		UPDATE content_items
		SET subject = $1, title = $2, folder = $3, body = $4,
			index_status = $5, index_error = NULL, updated_at = NOW()
		WHERE id = $6
		RETURNING id, uploaded_by, subject, title, folder, body, index_status, index_error, chunk_count, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		req.Subject, req.Title, folder, req.Body, models.IndexPending, id,
	).Scan(
		&item.ID, &item.UploadedBy, &item.Subject, &item.Title, &item.Folder,
		&item.Body, &item.IndexStatus, &item.IndexError, &item.ChunkCount,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "content item %d not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update content item")
	}
	return &item, nil
}

// Delete removes a content item, its chunks and its vectors
func (s *ContentService) Delete(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceContentFunction(ctx, "Delete",
		observability.AttributeContentID(id),
	)
	defer observability.FinishSpan(span, &err)

	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	vectorIDs, err := s.chunkVectorIDs(ctx, id)
	if err != nil {
		return err
	}
	if len(vectorIDs) > 0 && s.index != nil {
		if delErr := s.index.DeleteByID(ctx, namespaceForSubject(item.Subject), vectorIDs); delErr != nil {
			// Orphaned vectors are harmless for queries; the row delete still proceeds
			s.logger.Warn(ctx, "Failed to delete vectors for content item", map[string]interface{}{
				"content_id": id,
				"error":      delErr.Error(),
			})
		}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM content_chunks WHERE content_id = $1", id); err != nil {
		return contextutils.WrapError(err, "failed to delete content chunks")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM content_items WHERE id = $1", id); err != nil {
		return contextutils.WrapError(err, "failed to delete content item")
	}

	s.logger.Info(ctx, "Content deleted", map[string]interface{}{"content_id": id})
	return nil
}

// ListFolders returns the distinct folders used under a subject
func (s *ContentService) ListFolders(ctx context.Context, subject string) (result0 []string, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "ListFolders",
		observability.AttributeSubject(subject),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT DISTINCT folder
		FROM content_items
		WHERE subject = $1 AND folder IS NOT NULL
		ORDER BY folder`

	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list folders")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	folders := []string{}
	for rows.Next() {
		var folder string
		if err := rows.Scan(&folder); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan folder")
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating folders")
	}
	return folders, nil
}

func (s *ContentService) chunkVectorIDs(ctx context.Context, contentID int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT vector_id FROM content_chunks WHERE content_id = $1", contentID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load chunk vector ids")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan vector id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndexContent runs the full indexing pipeline for one content item:
// split into chunks, embed, upsert vectors and record the chunk rows
func (s *ContentService) IndexContent(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceContentFunction(ctx, "IndexContent",
		observability.AttributeContentID(id),
	)
	defer observability.FinishSpan(span, &err)

	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.setIndexStatus(ctx, id, models.IndexIndexing, ""); err != nil {
		return err
	}

	if indexErr := s.indexItem(ctx, item); indexErr != nil {
		if statusErr := s.setIndexStatus(ctx, id, models.IndexFailed, indexErr.Error()); statusErr != nil {
			s.logger.Warn(ctx, "Failed to record index failure", map[string]interface{}{
				"content_id": id,
				"error":      statusErr.Error(),
			})
		}
		return indexErr
	}
	return nil
}

func (s *ContentService) indexItem(ctx context.Context, item *models.ContentItem) error {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize()),
		textsplitter.WithChunkOverlap(s.chunkOverlap()),
	)
	chunks, err := splitter.SplitText(item.Body)
	if err != nil {
		return contextutils.WrapError(err, "failed to split content into chunks")
	}
	if len(chunks) == 0 {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "content body produced no chunks")
	}

	embeddings, err := s.gemini.EmbedTexts(ctx, chunks, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return contextutils.WrapError(err, "failed to embed content chunks")
	}
	if len(embeddings) != len(chunks) {
		return contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid,
			"embedding count %d does not match chunk count %d", len(embeddings), len(chunks))
	}

	namespace := namespaceForSubject(item.Subject)

	// Drop vectors from any previous run before writing the new set
	oldIDs, err := s.chunkVectorIDs(ctx, item.ID)
	if err != nil {
		return err
	}
	if len(oldIDs) > 0 && s.index != nil {
		if delErr := s.index.DeleteByID(ctx, namespace, oldIDs); delErr != nil {
			return contextutils.WrapError(delErr, "failed to delete stale vectors")
		}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM content_chunks WHERE content_id = $1", item.ID); err != nil {
		return contextutils.WrapError(err, "failed to delete stale chunks")
	}

	vectors := make([]ContentVector, 0, len(chunks))
	for i, chunk := range chunks {
		vectors = append(vectors, ContentVector{
			ID:     chunkVectorID(item.ID, i+1),
			Values: embeddings[i],
			Metadata: map[string]interface{}{
				"content_id": item.ID,
				"title":      item.Title,
				"ordinal":    i + 1,
				"text":       chunk,
			},
		})
	}
	if s.index != nil {
		if err := s.index.Upsert(ctx, namespace, vectors); err != nil {
			return contextutils.WrapError(err, "failed to upsert vectors")
		}
	}

	for i, chunk := range chunks {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO content_chunks (content_id, ordinal, chunk_text, vector_id, created_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			item.ID, i+1, chunk, chunkVectorID(item.ID, i+1),
		)
		if err != nil {
			return contextutils.WrapError(err, "failed to insert content chunk")
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE content_items
		SET index_status = $1, index_error = NULL, chunk_count = $2, updated_at = NOW()
		WHERE id = $3`,
		models.IndexIndexed, len(chunks), item.ID,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to mark content indexed")
	}

	s.logger.Info(ctx, "Content indexed", map[string]interface{}{
		"content_id": item.ID,
		"chunks":     len(chunks),
		"namespace":  namespace,
	})
	return nil
}

func (s *ContentService) setIndexStatus(ctx context.Context, id int, status models.IndexStatus, indexError string) error {
	errValue := sql.NullString{}
	if indexError != "" {
		errValue = sql.NullString{String: indexError, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET index_status = $1, index_error = $2, updated_at = NOW()
		WHERE id = $3`,
		status, errValue, id,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to update index status")
	}
	return nil
}

// IndexPending indexes up to limit content items waiting in the pending state.
// Failures are recorded on the item and do not stop the pass.
func (s *ContentService) IndexPending(ctx context.Context, limit int) (result0 int, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "IndexPending",
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM content_items
		WHERE index_status = $1
		ORDER BY created_at
		LIMIT $2`,
		models.IndexPending, limit,
	)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to list pending content")
	}
	ids := []int{}
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return 0, contextutils.WrapError(scanErr, "failed to scan pending content id")
		}
		ids = append(ids, id)
	}
	if closeErr := rows.Close(); closeErr != nil {
		s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
	}
	if err := rows.Err(); err != nil {
		return 0, contextutils.WrapError(err, "error iterating pending content")
	}

	indexed := 0
	for _, id := range ids {
		if indexErr := s.IndexContent(ctx, id); indexErr != nil {
			s.logger.Warn(ctx, "Failed to index content item", map[string]interface{}{
				"content_id": id,
				"error":      indexErr.Error(),
			})
			continue
		}
		indexed++
	}

	span.SetAttributes(attribute.Int("content.indexed_count", indexed))
	return indexed, nil
}

// Query answers a question over the indexed material for a subject.
// When the vector index or the embedding call fails, it degrades to a
// fuzzy text search over the stored chunks instead of failing outright.
func (s *ContentService) Query(ctx context.Context, req *models.ContentQueryRequest) (result0 *models.RAGAnswer, err error) {
	ctx, span := observability.TraceContentFunction(ctx, "Query",
		observability.AttributeSubject(req.Subject),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Question) == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "subject and question are required")
	}
	topK := s.topK(req.TopK)

	sources, degraded := s.retrieveSources(ctx, req.Subject, req.Question, topK)
	if len(sources) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "no indexed content matched the question")
	}

	answer, err := s.gemini.GenerateText(ctx, "standard",
		ragSystemPrompt, buildRAGPrompt(req.Question, sources))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to generate answer")
	}

	span.SetAttributes(
		attribute.Int("rag.source_count", len(sources)),
		attribute.Bool("rag.degraded", degraded),
	)
	return &models.RAGAnswer{
		Answer:   strings.TrimSpace(answer),
		Sources:  sources,
		Degraded: degraded,
	}, nil
}

const ragSystemPrompt = `You are a study assistant for Class 12 students. Answer strictly from the provided study material. If the material does not contain the answer, say so. Keep answers concise and exam focused.`

func buildRAGPrompt(question string, sources []models.RAGSource) string {
	var b strings.Builder
	b.WriteString("Study material:\n")
	for i, source := range sources {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, source.Title, source.Excerpt)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func (s *ContentService) retrieveSources(ctx context.Context, subject, question string, topK int) ([]models.RAGSource, bool) {
	sources, err := s.vectorSources(ctx, subject, question, topK)
	if err == nil {
		return sources, false
	}

	s.logger.Warn(ctx, "Vector retrieval failed, falling back to text search", map[string]interface{}{
		"subject": subject,
		"error":   err.Error(),
	})
	fallback, fbErr := s.fallbackSources(ctx, subject, question, topK)
	if fbErr != nil {
		s.logger.Warn(ctx, "Fallback retrieval failed", map[string]interface{}{
			"subject": subject,
			"error":   fbErr.Error(),
		})
		return nil, true
	}
	return fallback, true
}

func (s *ContentService) vectorSources(ctx context.Context, subject, question string, topK int) ([]models.RAGSource, error) {
	if s.index == nil {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "vector index is not configured")
	}

	vector, err := s.gemini.EmbedQuery(ctx, question)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to embed question")
	}

	matches, err := s.index.Query(ctx, namespaceForSubject(subject), vector, topK)
	if err != nil {
		return nil, err
	}

	sources := make([]models.RAGSource, 0, len(matches))
	for _, match := range matches {
		source := models.RAGSource{Score: match.Score}
		if contentID, ok := match.Metadata["content_id"].(float64); ok {
			source.ContentID = int(contentID)
		}
		if title, ok := match.Metadata["title"].(string); ok {
			source.Title = title
		}
		if text, ok := match.Metadata["text"].(string); ok {
			source.Excerpt = sourceExcerpt(text)
		}
		if source.Excerpt == "" {
			continue
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// fallbackSources scores stored chunks with word level fuzzy matching
func (s *ContentService) fallbackSources(ctx context.Context, subject, question string, topK int) ([]models.RAGSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.content_id, ci.title, cc.chunk_text
		FROM content_chunks cc
		JOIN content_items ci ON ci.id = cc.content_id
		WHERE ci.subject = $1`,
		subject,
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load chunks for fallback search")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	type scoredChunk struct {
		contentID int
		title     string
		text      string
		score     int
	}
	terms := questionTerms(question)
	scored := []scoredChunk{}
	for rows.Next() {
		var chunk scoredChunk
		if err := rows.Scan(&chunk.contentID, &chunk.title, &chunk.text); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan chunk")
		}
		chunk.score = fuzzyChunkScore(terms, chunk.text)
		if chunk.score > 0 {
			scored = append(scored, chunk)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating chunks")
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > topK {
		scored = scored[:topK]
	}

	sources := make([]models.RAGSource, 0, len(scored))
	for _, chunk := range scored {
		sources = append(sources, models.RAGSource{
			ContentID: chunk.contentID,
			Title:     chunk.title,
			Excerpt:   sourceExcerpt(chunk.text),
			Score:     float64(chunk.score) / float64(max(len(terms), 1)),
		})
	}
	return sources, nil
}

// questionTerms extracts the search terms from a question, skipping short
// filler words that would match everything
func questionTerms(question string) []string {
	words := strings.Fields(strings.ToLower(question))
	terms := []string{}
	for _, word := range words {
		word = strings.Trim(word, ".,?!:;\"'()")
		if len(word) > 3 {
			terms = append(terms, word)
		}
	}
	return terms
}

func fuzzyChunkScore(terms []string, text string) int {
	score := 0
	for _, term := range terms {
		if fuzzy.MatchFold(term, text) {
			score++
		}
	}
	return score
}
