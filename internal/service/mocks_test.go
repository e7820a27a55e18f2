package service

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/pagination"
	"github.com/cloo-solutions/tutorcore/internal/storage"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/stretchr/testify/mock"
)

const (
	orgA     = "org-a"
	orgB     = "org-b"
	courseA1 = "course-a1"
	courseA2 = "course-a2"
	courseB1 = "course-b1"
)

func studentOf(orgID string) tenant.Principal {
	return tenant.Principal{OrgID: orgID, UserID: "stu-" + orgID, Role: domain.RoleStudent}
}

func professorOf(orgID string) tenant.Principal {
	return tenant.Principal{OrgID: orgID, UserID: "prof-" + orgID, Role: domain.RoleProfessor}
}

func adminOf(orgID string) tenant.Principal {
	return tenant.Principal{OrgID: orgID, UserID: "adm-" + orgID, Role: domain.RoleAdmin}
}

// MockRoster is a mock implementation of tenant.Roster
type MockRoster struct {
	mock.Mock
}

func (m *MockRoster) Teaches(ctx context.Context, orgID, userID, courseID string) (bool, error) {
	args := m.Called(ctx, orgID, userID, courseID)
	return args.Bool(0), args.Error(1)
}

// MockMaterialRepository is a mock implementation of MaterialRepositoryInterface
// and MaterialWriter
type MockMaterialRepository struct {
	mock.Mock
}

func (m *MockMaterialRepository) Create(ctx context.Context, mat *domain.Material) error {
	args := m.Called(ctx, mat)
	return args.Error(0)
}

func (m *MockMaterialRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Material, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Material), args.Error(1)
}

func (m *MockMaterialRepository) MarkFailed(ctx context.Context, orgID, id, reason string) error {
	args := m.Called(ctx, orgID, id, reason)
	return args.Error(0)
}

func (m *MockMaterialRepository) Stats(ctx context.Context, orgID string) (*domain.MaterialStats, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MaterialStats), args.Error(1)
}

func (m *MockMaterialRepository) ListByCourse(ctx context.Context, orgID, courseID string, cursor *pagination.Cursor, limit int) (*MaterialPageResult, error) {
	args := m.Called(ctx, orgID, courseID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MaterialPageResult), args.Error(1)
}

func (m *MockMaterialRepository) ListNeedingProcessing(ctx context.Context, limit int) ([]MaterialRef, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MaterialRef), args.Error(1)
}

// replaceChunksFunc lets a test derive stored chunks from the drafts it receives.
type replaceChunksFunc func(ctx context.Context, orgID, materialID string, drafts []domain.ChunkDraft) []*domain.ContentChunk

// MockChunkRepository is a mock implementation of ChunkReader and ChunkWriter
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ReplaceChunks(ctx context.Context, orgID, materialID string, drafts []domain.ChunkDraft) ([]*domain.ContentChunk, error) {
	args := m.Called(ctx, orgID, materialID, drafts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(replaceChunksFunc); ok {
		return fn(ctx, orgID, materialID, drafts), args.Error(1)
	}
	return args.Get(0).([]*domain.ContentChunk), args.Error(1)
}

func (m *MockChunkRepository) BatchUpdateEmbeddings(ctx context.Context, orgID string, updates []domain.ChunkVector) ([]*domain.ContentChunk, error) {
	args := m.Called(ctx, orgID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContentChunk), args.Error(1)
}

func (m *MockChunkRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.ContentChunk, error) {
	args := m.Called(ctx, orgID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContentChunk), args.Error(1)
}

func (m *MockChunkRepository) ListByMaterial(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error) {
	args := m.Called(ctx, orgID, materialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContentChunk), args.Error(1)
}

func (m *MockChunkRepository) ListMissingEmbeddings(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error) {
	args := m.Called(ctx, orgID, materialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContentChunk), args.Error(1)
}

// MockEmbeddingJobRepository is a mock implementation of EmbeddingJobWriter
type MockEmbeddingJobRepository struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) GetObjectText(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) PutObjectText(ctx context.Context, key, text string) error {
	args := m.Called(ctx, key, text)
	return args.Error(0)
}

func (m *MockObjectStore) HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ObjectMetadata), args.Error(1)
}

// MockEmbeddingProvider is a mock implementation of EmbeddingProvider
type MockEmbeddingProvider struct {
	mock.Mock
	dims int
}

func (m *MockEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingProvider) Dimensions() int {
	return m.dims
}

// MockVectorSearcher is a mock implementation of VectorSearcher
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChunkMatch), args.Error(1)
}

// MockKeywordSearcher is a mock implementation of KeywordSearcher
type MockKeywordSearcher struct {
	mock.Mock
}

func (m *MockKeywordSearcher) KeywordSearch(ctx context.Context, q domain.KeywordQuery) ([]domain.ChunkMatch, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChunkMatch), args.Error(1)
}

// MockInteractionRepository is a mock implementation of InteractionRepositoryInterface
type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) Create(ctx context.Context, in *domain.AIInteraction) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockInteractionRepository) ListByUser(ctx context.Context, orgID, userID, courseID string, limit int) ([]*domain.AIInteraction, error) {
	args := m.Called(ctx, orgID, userID, courseID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AIInteraction), args.Error(1)
}

// MockQuizRepository is a mock implementation of QuizRepositoryInterface
type MockQuizRepository struct {
	mock.Mock
}

func (m *MockQuizRepository) ListQuestionsByCourse(ctx context.Context, orgID, courseID string) ([]domain.Question, error) {
	args := m.Called(ctx, orgID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Question), args.Error(1)
}

func (m *MockQuizRepository) ListAnswers(ctx context.Context, orgID, userID, courseID string) ([]domain.QuestionAnswer, error) {
	args := m.Called(ctx, orgID, userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QuestionAnswer), args.Error(1)
}

func (m *MockQuizRepository) GetQuestion(ctx context.Context, orgID, id string) (*domain.Question, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Question), args.Error(1)
}

func (m *MockQuizRepository) RecordAnswer(ctx context.Context, courseID string, a *domain.QuestionAnswer) error {
	args := m.Called(ctx, courseID, a)
	return args.Error(0)
}

// MockUUIDGenerator hands out a fixed sequence of ids
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

type testTxRepos struct {
	materials     MaterialWriter
	embeddingJobs EmbeddingJobWriter
}

func (t *testTxRepos) Materials() MaterialWriter {
	return t.materials
}

func (t *testTxRepos) EmbeddingJobs() EmbeddingJobWriter {
	return t.embeddingJobs
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
