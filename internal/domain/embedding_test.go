package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingJob(t *testing.T) {
	now := time.Now()
	job := NewEmbeddingJob("job1", "org1", "m1", now)

	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, "org1", job.OrgID)
	assert.Equal(t, "m1", job.MaterialID)
	assert.Equal(t, EmbeddingJobStatusPending, job.Status)
	assert.Equal(t, int32(0), job.Retries)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.ProcessedAt)
}

func TestValidateEmbeddingJob(t *testing.T) {
	now := time.Now()
	valid := func() *EmbeddingJob {
		return &EmbeddingJob{ID: "job1", OrgID: "org1", MaterialID: "m1", Status: EmbeddingJobStatusPending, CreatedAt: now}
	}

	tests := []struct {
		name    string
		mutate  func(j *EmbeddingJob)
		wantErr bool
		errMsg  string
	}{
		{name: "valid job", mutate: func(j *EmbeddingJob) {}},
		{name: "missing ID", mutate: func(j *EmbeddingJob) { j.ID = "" }, wantErr: true, errMsg: "ID"},
		{name: "missing OrgID", mutate: func(j *EmbeddingJob) { j.OrgID = "" }, wantErr: true, errMsg: "OrgID"},
		{name: "missing MaterialID", mutate: func(j *EmbeddingJob) { j.MaterialID = "" }, wantErr: true, errMsg: "MaterialID"},
		{name: "invalid Status", mutate: func(j *EmbeddingJob) { j.Status = "invalid" }, wantErr: true, errMsg: "Status"},
		{name: "negative Retries", mutate: func(j *EmbeddingJob) { j.Retries = -1 }, wantErr: true, errMsg: "Retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid()
			tt.mutate(job)
			err := ValidateEmbeddingJob(job)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
