package services

import (
	"context"
	"sync"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/pinecone-io/go-pinecone/v4/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentVector is one embedding ready for the vector index
type ContentVector struct {
	ID       string
	Values   []float32
	Metadata map[string]interface{}
}

// VectorMatch is one scored result from a vector query
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// VectorIndex abstracts the vector store behind the RAG pipeline
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, vectors []ContentVector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error)
	DeleteByID(ctx context.Context, namespace string, ids []string) error
}

// PineconeIndex implements VectorIndex on a Pinecone serverless index.
// One namespace is used per subject; connections are cached per namespace.
type PineconeIndex struct {
	client *pinecone.Client
	host   string
	logger *observability.Logger

	mu          sync.Mutex
	connections map[string]*pinecone.IndexConnection
}

// NewPineconeIndex creates a Pinecone-backed vector index
func NewPineconeIndex(cfg *config.EmbeddingConfig, logger *observability.Logger) (*PineconeIndex, error) {
	if cfg.PineconeAPIKey == "" || cfg.PineconeHost == "" {
		return nil, contextutils.WrapError(contextutils.ErrAIConfigInvalid, "pinecone api key and host are required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.PineconeAPIKey,
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create pinecone client")
	}

	return &PineconeIndex{
		client:      client,
		host:        cfg.PineconeHost,
		logger:      logger,
		connections: map[string]*pinecone.IndexConnection{},
	}, nil
}

func (p *PineconeIndex) connection(namespace string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[namespace]; ok {
		return conn, nil
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open pinecone index connection")
	}
	p.connections[namespace] = conn
	return conn, nil
}

// Upsert writes vectors into the namespace
func (p *PineconeIndex) Upsert(ctx context.Context, namespace string, vectors []ContentVector) error {
	if len(vectors) == 0 {
		return nil
	}

	conn, err := p.connection(namespace)
	if err != nil {
		return err
	}

	batch := make([]*pinecone.Vector, 0, len(vectors))
	for i := range vectors {
		metadata, metaErr := structpb.NewStruct(vectors[i].Metadata)
		if metaErr != nil {
			return contextutils.WrapError(metaErr, "failed to build vector metadata")
		}
		batch = append(batch, &pinecone.Vector{
			Id:       vectors[i].ID,
			Values:   &vectors[i].Values,
			Metadata: metadata,
		})
	}

	count, err := conn.UpsertVectors(ctx, batch)
	if err != nil {
		return contextutils.WrapError(err, "failed to upsert vectors")
	}

	p.logger.Debug(ctx, "Upserted vectors", map[string]interface{}{
		"namespace": namespace,
		"count":     count,
	})
	return nil
}

// Query returns the topK nearest vectors in the namespace
func (p *PineconeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error) {
	conn, err := p.connection(namespace)
	if err != nil {
		return nil, err
	}

	result, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query vectors")
	}

	matches := make([]VectorMatch, 0, len(result.Matches))
	for _, match := range result.Matches {
		if match == nil || match.Vector == nil {
			continue
		}
		vm := VectorMatch{
			ID:    match.Vector.Id,
			Score: float64(match.Score),
		}
		if match.Vector.Metadata != nil {
			vm.Metadata = match.Vector.Metadata.AsMap()
		}
		matches = append(matches, vm)
	}
	return matches, nil
}

// DeleteByID removes vectors by id from the namespace
func (p *PineconeIndex) DeleteByID(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := p.connection(namespace)
	if err != nil {
		return err
	}

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return contextutils.WrapError(err, "failed to delete vectors")
	}
	return nil
}
