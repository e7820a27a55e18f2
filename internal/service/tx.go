package service

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
)

// MaterialWriter is the part of material persistence used inside a transaction.
type MaterialWriter interface {
	Create(ctx context.Context, m *domain.Material) error
}

// EmbeddingJobWriter enqueues embedding jobs.
type EmbeddingJobWriter interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Materials() MaterialWriter
	EmbeddingJobs() EmbeddingJobWriter
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
