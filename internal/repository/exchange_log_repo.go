package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"charla-llm/internal/domain"
)

// ExchangeLogRepository registra intercambios resueltos para auditoria.
// Solo escritura: nadie reconstruye el transcript desde esta tabla.
type ExchangeLogRepository interface {
	Record(ctx context.Context, entry domain.ExchangeLog) error
}

type PgExchangeLogRepository struct {
	pool *pgxpool.Pool
}

func NewPgExchangeLogRepository(pool *pgxpool.Pool) *PgExchangeLogRepository {
	return &PgExchangeLogRepository{pool: pool}
}

func (r *PgExchangeLogRepository) Record(ctx context.Context, entry domain.ExchangeLog) error {
	const query = `
		INSERT INTO exchange_logs (id, session_id, user_text, reply_text, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var replyText interface{}
	if entry.ReplyText != "" {
		replyText = entry.ReplyText
	}

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.UserText,
		replyText,
		string(entry.Status),
		entry.Attempts,
		entry.CreatedAt,
	)
	return err
}
