//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testDims = 1536

func setupDB(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return ctx, pool
}

// tenantFixture is one organization with a professor teaching one course
// and a student.
type tenantFixture struct {
	Org       *domain.Organization
	Professor *domain.User
	Student   *domain.User
	Course    *domain.Course
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func seedTenant(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) tenantFixture {
	t.Helper()
	f := tenantFixture{
		Org: domain.NewOrganization(uuid.NewString(), name, now()),
	}
	require.NoError(t, NewOrgRepository(pool).Create(ctx, f.Org))

	users := NewUserRepository(pool)
	f.Professor = &domain.User{ID: uuid.NewString(), OrgID: f.Org.ID, Email: "prof@" + name, Name: "Prof", Role: domain.RoleProfessor, CreatedAt: now()}
	f.Student = &domain.User{ID: uuid.NewString(), OrgID: f.Org.ID, Email: "student@" + name, Name: "Student", Role: domain.RoleStudent, CreatedAt: now()}
	require.NoError(t, users.Create(ctx, f.Professor))
	require.NoError(t, users.Create(ctx, f.Student))

	f.Course = seedCourse(ctx, t, pool, f, "Machine Learning")
	return f
}

func seedUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID string, role domain.Role) *domain.User {
	t.Helper()
	id := uuid.NewString()
	u := &domain.User{ID: id, OrgID: orgID, Email: id + "@example.edu", Name: "User", Role: role, CreatedAt: now()}
	require.NoError(t, NewUserRepository(pool).Create(ctx, u))
	return u
}

func seedCourse(ctx context.Context, t *testing.T, pool *pgxpool.Pool, f tenantFixture, title string) *domain.Course {
	t.Helper()
	c := &domain.Course{ID: uuid.NewString(), OrgID: f.Org.ID, Title: title, CreatedBy: f.Professor.ID, CreatedAt: now()}
	require.NoError(t, NewCourseRepository(pool).Create(ctx, c))
	return c
}

// seedTopic creates a module with one topic under the course.
func seedTopic(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID, courseID string) *domain.Topic {
	t.Helper()
	moduleID := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO modules (id, org_id, course_id, title, position) VALUES ($1, $2, $3, 'Week 1', 0)`,
		moduleID, orgID, courseID,
	)
	require.NoError(t, err)

	topic := &domain.Topic{ID: uuid.NewString(), OrgID: orgID, CourseID: courseID, ModuleID: moduleID, Title: "Optimization"}
	_, err = pool.Exec(ctx,
		`INSERT INTO topics (id, org_id, course_id, module_id, title, position) VALUES ($1, $2, $3, $4, $5, 0)`,
		topic.ID, topic.OrgID, topic.CourseID, topic.ModuleID, topic.Title,
	)
	require.NoError(t, err)
	return topic
}

func seedMaterial(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID, courseID, text string) *domain.Material {
	t.Helper()
	m := &domain.Material{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		CourseID:  courseID,
		Title:     "Lecture",
		FileType:  "md",
		Text:      text,
		Status:    domain.MaterialStatusUnprocessed,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	require.NoError(t, NewMaterialRepository(pool).Create(ctx, m))
	return m
}

// drafts builds n contiguous non-overlapping chunk drafts of 10 chars each.
func drafts(materialID string, n int) []domain.ChunkDraft {
	out := make([]domain.ChunkDraft, n)
	for i := range out {
		out[i] = domain.ChunkDraft{
			MaterialID:  materialID,
			Ordinal:     i,
			Content:     "chunk text",
			StartOffset: i * 10,
			EndOffset:   (i + 1) * 10,
		}
	}
	return out
}

// vec returns a unit vector pointing at axis hot, tilted towards axis
// hot+1 by tilt.
func vec(hot int, tilt float32) []float32 {
	v := make([]float32, testDims)
	v[hot%testDims] = 1
	v[(hot+1)%testDims] = tilt
	return v
}
