//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialRepository_CreateAndGet(t *testing.T) {
	ctx, pool := setupDB(t)
	a := seedTenant(ctx, t, pool, "a.edu")
	b := seedTenant(ctx, t, pool, "b.edu")
	repo := NewMaterialRepository(pool)

	m := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "Gradient descent minimizes loss.")

	got, err := repo.GetByID(ctx, a.Org.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Text, got.Text)
	assert.Equal(t, domain.MaterialStatusUnprocessed, got.Status)
	assert.Empty(t, got.TopicID)

	_, err = repo.GetByID(ctx, b.Org.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound, "foreign material looks missing")

	orphan := &domain.Material{
		ID: uuid.NewString(), OrgID: b.Org.ID, CourseID: a.Course.ID, Title: "x", Text: "x",
		Status: domain.MaterialStatusUnprocessed, CreatedAt: now(), UpdatedAt: now(),
	}
	assert.ErrorIs(t, repo.Create(ctx, orphan), domain.ErrCourseNotFound, "course of another org")
}

func TestMaterialRepository_TopicIsPinnedToCourse(t *testing.T) {
	ctx, pool := setupDB(t)
	a := seedTenant(ctx, t, pool, "a.edu")
	b := seedTenant(ctx, t, pool, "b.edu")
	repo := NewMaterialRepository(pool)
	statistics := seedCourse(ctx, t, pool, a, "Statistics")

	topicA := seedTopic(ctx, t, pool, a.Org.ID, a.Course.ID)
	topicStats := seedTopic(ctx, t, pool, a.Org.ID, statistics.ID)
	topicB := seedTopic(ctx, t, pool, b.Org.ID, b.Course.ID)

	material := func(topicID string) *domain.Material {
		return &domain.Material{
			ID: uuid.NewString(), OrgID: a.Org.ID, CourseID: a.Course.ID, TopicID: topicID,
			Title: "Lecture", Text: "x", Status: domain.MaterialStatusUnprocessed,
			CreatedAt: now(), UpdatedAt: now(),
		}
	}

	ok := material(topicA.ID)
	require.NoError(t, repo.Create(ctx, ok))
	got, err := repo.GetByID(ctx, a.Org.ID, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, topicA.ID, got.TopicID)

	t.Run("topic of another organization", func(t *testing.T) {
		err := repo.Create(ctx, material(topicB.ID))
		assert.ErrorIs(t, err, domain.ErrCrossTenantReference)
	})

	t.Run("topic of another course in the same organization", func(t *testing.T) {
		err := repo.Create(ctx, material(topicStats.ID))
		assert.ErrorIs(t, err, domain.ErrCrossTenantReference)
	})

	t.Run("unknown topic", func(t *testing.T) {
		err := repo.Create(ctx, material(uuid.NewString()))
		assert.ErrorIs(t, err, domain.ErrCrossTenantReference)
	})

	t.Run("module cannot hang a topic under another course", func(t *testing.T) {
		_, err := pool.Exec(ctx,
			`INSERT INTO topics (id, org_id, course_id, module_id, title) VALUES ($1, $2, $3, $4, 'x')`,
			uuid.NewString(), a.Org.ID, statistics.ID, topicA.ModuleID,
		)
		assert.Equal(t, pgForeignKeyViolation, pgErrorCode(err))
	})
}

func TestMaterialRepository_MarkFailed(t *testing.T) {
	ctx, pool := setupDB(t)
	a := seedTenant(ctx, t, pool, "a.edu")
	repo := NewMaterialRepository(pool)
	m := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "text")

	require.NoError(t, repo.MarkFailed(ctx, a.Org.ID, m.ID, "provider down"))
	require.NoError(t, repo.MarkFailed(ctx, a.Org.ID, m.ID, "provider still down"))

	got, err := repo.GetByID(ctx, a.Org.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaterialStatusFailed, got.Status)
	assert.EqualValues(t, 2, got.RetryCount)
	assert.Equal(t, "provider still down", got.LastError)

	assert.ErrorIs(t, repo.MarkFailed(ctx, uuid.NewString(), m.ID, "x"), domain.ErrMaterialNotFound)
}

func TestMaterialRepository_ListByCourse(t *testing.T) {
	ctx, pool := setupDB(t)
	a := seedTenant(ctx, t, pool, "a.edu")
	repo := NewMaterialRepository(pool)

	base := now()
	var ids []string
	for i := 0; i < 3; i++ {
		m := &domain.Material{
			ID: uuid.NewString(), OrgID: a.Org.ID, CourseID: a.Course.ID, Title: "Lecture", Text: "t",
			Status: domain.MaterialStatusUnprocessed, CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
		}
		require.NoError(t, repo.Create(ctx, m))
		ids = append(ids, m.ID)
	}

	page, err := repo.ListByCourse(ctx, a.Org.ID, a.Course.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Items[0].ID)

	cursor, err := pagination.DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	rest, err := repo.ListByCourse(ctx, a.Org.ID, a.Course.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, ids[0], rest.Items[0].ID)
	assert.False(t, rest.HasMore)
}

func TestMaterialRepository_ListNeedingProcessingAndStats(t *testing.T) {
	ctx, pool := setupDB(t)
	a := seedTenant(ctx, t, pool, "a.edu")
	repo := NewMaterialRepository(pool)
	chunks := NewChunkRepository(pool, ChunkSearchConfig{Dimensions: testDims})
	jobs := NewEmbeddingJobRepository(pool)

	fresh := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "fresh")
	queued := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "queued")
	half := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "half embedded")
	done := seedMaterial(ctx, t, pool, a.Org.ID, a.Course.ID, "done")

	require.NoError(t, jobs.Create(ctx, domain.NewEmbeddingJob(uuid.NewString(), a.Org.ID, queued.ID, now())))

	halfChunks, err := chunks.ReplaceChunks(ctx, a.Org.ID, half.ID, drafts(half.ID, 2))
	require.NoError(t, err)
	_, err = chunks.BatchUpdateEmbeddings(ctx, a.Org.ID, []domain.ChunkVector{{ChunkID: halfChunks[0].ID, Vector: vec(0, 0)}})
	require.NoError(t, err)

	doneChunks, err := chunks.ReplaceChunks(ctx, a.Org.ID, done.ID, drafts(done.ID, 1))
	require.NoError(t, err)
	_, err = chunks.BatchUpdateEmbeddings(ctx, a.Org.ID, []domain.ChunkVector{{ChunkID: doneChunks[0].ID, Vector: vec(1, 0)}})
	require.NoError(t, err)

	refs, err := repo.ListNeedingProcessing(ctx, 10)
	require.NoError(t, err)
	var got []string
	for _, r := range refs {
		assert.Equal(t, a.Org.ID, r.OrgID)
		got = append(got, r.MaterialID)
	}
	assert.ElementsMatch(t, []string{fresh.ID, half.ID}, got)

	stats, err := repo.Stats(ctx, a.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[domain.MaterialStatusUnprocessed])
	assert.Equal(t, 1, stats.ByStatus[domain.MaterialStatusChunked])
	assert.Equal(t, 1, stats.ByStatus[domain.MaterialStatusEmbedded])
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 1, stats.ChunksMissingVector)
}
