package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/tutorcore/internal/chunking"
	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/pagination"
	"github.com/cloo-solutions/tutorcore/internal/storage"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type materialFixture struct {
	roster    *MockRoster
	materials *MockMaterialRepository
	chunks    *MockChunkRepository
	jobs      *MockEmbeddingJobRepository
	objects   *MockObjectStore
	tx        *testTxRunner
	svc       *MaterialService
}

func newMaterialFixture() *materialFixture {
	f := &materialFixture{
		roster:    new(MockRoster),
		materials: new(MockMaterialRepository),
		chunks:    new(MockChunkRepository),
		jobs:      new(MockEmbeddingJobRepository),
		objects:   new(MockObjectStore),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{materials: f.materials, embeddingJobs: f.jobs}}
	gate := tenant.NewGate(f.roster, nil)
	store := NewEmbeddingStore(gate, f.materials, f.chunks, 4, nil)
	f.svc = NewMaterialService(MaterialServiceDeps{
		Gate:      gate,
		Materials: f.materials,
		Chunks:    f.chunks,
		Store:     store,
		Objects:   f.objects,
		TxRunner:  f.tx,
		Params:    chunking.Params{TargetSize: 200, Overlap: 20},
	})
	return f
}

func storedFromDrafts(orgID, courseID string) replaceChunksFunc {
	return func(_ context.Context, _, materialID string, drafts []domain.ChunkDraft) []*domain.ContentChunk {
		out := make([]*domain.ContentChunk, len(drafts))
		for i, d := range drafts {
			out[i] = &domain.ContentChunk{
				ID:          materialID + "-" + string(rune('a'+i)),
				MaterialID:  materialID,
				OrgID:       orgID,
				CourseID:    courseID,
				Ordinal:     d.Ordinal,
				Content:     d.Content,
				StartOffset: d.StartOffset,
				EndOffset:   d.EndOffset,
			}
		}
		return out
	}
}

func lectureText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("Gradient descent updates the weights a little at a time. ")
	}
	return b.String()
}

func TestMaterialService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates material and job in one transaction", func(t *testing.T) {
		f := newMaterialFixture()
		f.svc.uuidGen = NewMockUUIDGenerator("mat-1", "job-1")
		f.roster.On("Teaches", mock.Anything, orgA, professorOf(orgA).UserID, courseA1).Return(true, nil)
		f.materials.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Material) bool {
			return m.ID == "mat-1" && m.OrgID == orgA && m.CourseID == courseA1 && m.Status == domain.MaterialStatusUnprocessed
		})).Return(nil)
		f.jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
			return j.ID == "job-1" && j.OrgID == orgA && j.MaterialID == "mat-1" && j.Status == domain.EmbeddingJobStatusPending
		})).Return(nil)

		m, err := f.svc.Register(ctx, professorOf(orgA), RegisterMaterialInput{
			CourseID: courseA1,
			Title:    "  Week 1  ",
			Text:     lectureText(3),
		})

		require.NoError(t, err)
		assert.Equal(t, "Week 1", m.Title)
		assert.True(t, f.tx.called)
		f.materials.AssertExpectations(t)
		f.jobs.AssertExpectations(t)
	})

	t.Run("job failure surfaces from the transaction", func(t *testing.T) {
		f := newMaterialFixture()
		f.materials.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.jobs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{CourseID: courseA1, Title: "T", Text: "x"})

		require.Error(t, err)
	})

	t.Run("topic outside the course is an integrity violation", func(t *testing.T) {
		f := newMaterialFixture()
		f.materials.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Material) bool {
			return m.TopicID == "topic-of-b"
		})).Return(domain.ErrCrossTenantReference)

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, TopicID: "topic-of-b", Title: "T", Text: "x",
		})

		assert.ErrorIs(t, err, domain.ErrCrossTenantReference)
		f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("upload moves the text to object storage", func(t *testing.T) {
		f := newMaterialFixture()
		f.svc.uuidGen = NewMockUUIDGenerator("mat-1", "job-1")
		key := storage.MaterialKey(orgA, courseA1, "mat-1")
		text := lectureText(3)
		f.objects.On("PutObjectText", mock.Anything, key, text).Return(nil)
		f.materials.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Material) bool {
			return m.StorageKey == key && m.Text == "" && m.FileSize == int64(len(text))
		})).Return(nil)
		f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

		m, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, Title: "Week 1", Text: text, Upload: true,
		})

		require.NoError(t, err)
		assert.Equal(t, key, m.StorageKey)
		f.objects.AssertExpectations(t)
		f.materials.AssertExpectations(t)
	})

	t.Run("upload without object storage is rejected", func(t *testing.T) {
		f := newMaterialFixture()
		f.svc.objects = nil

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, Title: "T", Text: "x", Upload: true,
		})

		assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
		assert.False(t, f.tx.called)
	})

	t.Run("storage key is checked and sized", func(t *testing.T) {
		f := newMaterialFixture()
		f.objects.On("HeadObject", mock.Anything, "materials/k.txt").
			Return(&storage.ObjectMetadata{ContentLength: 4096, ContentType: "text/plain"}, nil)
		f.materials.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Material) bool {
			return m.StorageKey == "materials/k.txt" && m.FileSize == 4096
		})).Return(nil)
		f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, Title: "T", StorageKey: "materials/k.txt",
		})

		require.NoError(t, err)
		f.materials.AssertExpectations(t)
	})

	t.Run("missing storage object is rejected before the transaction", func(t *testing.T) {
		f := newMaterialFixture()
		f.objects.On("HeadObject", mock.Anything, "materials/none.txt").Return(nil, errors.New("not found"))

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, Title: "T", StorageKey: "materials/none.txt",
		})

		assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
		assert.False(t, f.tx.called)
	})

	t.Run("oversized storage object is rejected", func(t *testing.T) {
		f := newMaterialFixture()
		f.objects.On("HeadObject", mock.Anything, "materials/huge.txt").
			Return(&storage.ObjectMetadata{ContentLength: storage.MaxMaterialTextBytes + 1}, nil)

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{
			CourseID: courseA1, Title: "T", StorageKey: "materials/huge.txt",
		})

		assert.ErrorIs(t, err, storage.ErrMaterialTooLarge)
		assert.False(t, f.tx.called)
	})

	t.Run("student cannot register", func(t *testing.T) {
		f := newMaterialFixture()

		_, err := f.svc.Register(ctx, studentOf(orgA), RegisterMaterialInput{CourseID: courseA1, Title: "T", Text: "x"})

		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.False(t, f.tx.called)
	})

	t.Run("missing text and storage key is a validation error", func(t *testing.T) {
		f := newMaterialFixture()

		_, err := f.svc.Register(ctx, adminOf(orgA), RegisterMaterialInput{CourseID: courseA1, Title: "T"})

		assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
		assert.False(t, f.tx.called)
	})
}

func TestMaterialService_ChunkMaterial(t *testing.T) {
	ctx := context.Background()

	t.Run("professor teaching the course chunks inline text", func(t *testing.T) {
		f := newMaterialFixture()
		m := testMaterial(orgA, courseA1, "m1")
		m.Text = lectureText(20)
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(m, nil)
		f.roster.On("Teaches", mock.Anything, orgA, professorOf(orgA).UserID, courseA1).Return(true, nil)
		f.chunks.On("ReplaceChunks", mock.Anything, orgA, "m1", mock.MatchedBy(func(d []domain.ChunkDraft) bool {
			return len(d) > 1 && domain.ValidateChunkSequence(d) == nil
		})).Return(storedFromDrafts(orgA, courseA1), nil)

		stored, err := f.svc.ChunkMaterial(ctx, professorOf(orgA), "m1")

		require.NoError(t, err)
		require.Greater(t, len(stored), 1)
		for i, c := range stored {
			assert.Equal(t, i, c.Ordinal)
			assert.Equal(t, orgA, c.OrgID)
		}
	})

	t.Run("text is fetched from storage when not inline", func(t *testing.T) {
		f := newMaterialFixture()
		m := testMaterial(orgA, courseA1, "m1")
		m.Text = ""
		m.StorageKey = "materials/org-a/course-a1/m1.txt"
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(m, nil)
		f.objects.On("GetObjectText", mock.Anything, m.StorageKey).Return(lectureText(2), nil)
		f.chunks.On("ReplaceChunks", mock.Anything, orgA, "m1", mock.Anything).Return(storedFromDrafts(orgA, courseA1), nil)

		stored, err := f.svc.ChunkMaterial(ctx, adminOf(orgA), "m1")

		require.NoError(t, err)
		assert.Len(t, stored, 1)
		f.objects.AssertExpectations(t)
	})

	t.Run("storage failure leaves chunks untouched", func(t *testing.T) {
		f := newMaterialFixture()
		m := testMaterial(orgA, courseA1, "m1")
		m.Text = ""
		m.StorageKey = "k"
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(m, nil)
		f.objects.On("GetObjectText", mock.Anything, "k").Return("", errors.New("no such key"))

		_, err := f.svc.ChunkMaterial(ctx, adminOf(orgA), "m1")

		require.Error(t, err)
		f.chunks.AssertNotCalled(t, "ReplaceChunks", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("professor of another course is denied", func(t *testing.T) {
		f := newMaterialFixture()
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(testMaterial(orgA, courseA2, "m1"), nil)
		f.roster.On("Teaches", mock.Anything, orgA, professorOf(orgA).UserID, courseA2).Return(false, nil)

		_, err := f.svc.ChunkMaterial(ctx, professorOf(orgA), "m1")

		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		f.chunks.AssertNotCalled(t, "ReplaceChunks", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("material from another org is not found", func(t *testing.T) {
		f := newMaterialFixture()
		f.materials.On("GetByID", mock.Anything, orgB, "m1").Return(nil, domain.ErrMaterialNotFound)

		_, err := f.svc.ChunkMaterial(ctx, adminOf(orgB), "m1")

		assert.ErrorIs(t, err, domain.ErrMaterialNotFound)
	})
}

func TestMaterialService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("student reads chunks in order", func(t *testing.T) {
		f := newMaterialFixture()
		chunks := []*domain.ContentChunk{
			testChunk(orgA, courseA1, "m1", "c1", 0),
			testChunk(orgA, courseA1, "m1", "c2", 1),
		}
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(testMaterial(orgA, courseA1, "m1"), nil)
		f.chunks.On("ListByMaterial", mock.Anything, orgA, "m1").Return(chunks, nil)

		got, err := f.svc.Chunks(ctx, studentOf(orgA), "m1")

		require.NoError(t, err)
		assert.Equal(t, chunks, got)
	})

	t.Run("get", func(t *testing.T) {
		f := newMaterialFixture()
		m := testMaterial(orgA, courseA1, "m1")
		f.materials.On("GetByID", mock.Anything, orgA, "m1").Return(m, nil)

		got, err := f.svc.Get(ctx, studentOf(orgA), "m1")

		require.NoError(t, err)
		assert.Equal(t, m, got)
	})

	t.Run("list rejects a malformed cursor", func(t *testing.T) {
		f := newMaterialFixture()

		_, err := f.svc.List(ctx, studentOf(orgA), courseA1, "%%%", 10)

		assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
		f.materials.AssertNotCalled(t, "ListByCourse", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("list first page", func(t *testing.T) {
		f := newMaterialFixture()
		page := &MaterialPageResult{Items: []*domain.Material{testMaterial(orgA, courseA1, "m1")}}
		f.materials.On("ListByCourse", mock.Anything, orgA, courseA1, (*pagination.Cursor)(nil), 10).Return(page, nil)

		got, err := f.svc.List(ctx, studentOf(orgA), courseA1, "", 10)

		require.NoError(t, err)
		assert.Equal(t, page, got)
	})

	t.Run("stats are scoped to the caller's org", func(t *testing.T) {
		f := newMaterialFixture()
		stats := &domain.MaterialStats{ByStatus: map[domain.MaterialStatus]int{domain.MaterialStatusEmbedded: 2}, TotalChunks: 7}
		f.materials.On("Stats", mock.Anything, orgB).Return(stats, nil)

		got, err := f.svc.Stats(ctx, adminOf(orgB))

		require.NoError(t, err)
		assert.Equal(t, stats, got)
	})
}
