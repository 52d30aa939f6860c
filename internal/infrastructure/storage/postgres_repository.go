package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

//go:embed migrations.sql
var migrations embed.FS

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var interactionColumns = []string{
	"id", "message_id", "provider", "kind", "state", "author", "url",
	"message", "language", "sentiment", "sentiment_flag", "created_at",
}

// PostgresRepository persists interactions and the sentiment queue in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.UnitOfWork = (*PostgresRepository)(nil)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres connects with lib/pq and pings the server.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresRepository(db), nil
}

// Migrate applies the embedded schema; it is idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	schema, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Do runs fn inside a single transaction.
func (r *PostgresRepository) Do(ctx context.Context, fn func(repos ports.Repositories) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(pgRepos{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, persistErr("rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

type pgRepos struct {
	tx dbtx
}

func (p pgRepos) Interactions() ports.InteractionStore { return pgInteractions(p) }
func (p pgRepos) Queue() ports.QueueRepository { return pgQueue(p) }

type pgInteractions pgRepos

func (p pgInteractions) FindByID(ctx context.Context, id int64) (domain.Interaction, error) {
	query, args, err := psql.Select(interactionColumns...).From("interactions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("build query: %w", err)
	}

	in, err := scanInteraction(p.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Interaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Interaction{}, persistErr("find interaction", err)
	}
	return in, nil
}

func (p pgInteractions) FindByMessageID(ctx context.Context, messageID string) (domain.Interaction, bool, error) {
	if messageID == "" {
		return domain.Interaction{}, false, nil
	}

	query, args, err := psql.Select(interactionColumns...).From("interactions").Where(sq.Eq{"message_id": messageID}).ToSql()
	if err != nil {
		return domain.Interaction{}, false, fmt.Errorf("build query: %w", err)
	}

	in, err := scanInteraction(p.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Interaction{}, false, nil
	}
	if err != nil {
		return domain.Interaction{}, false, persistErr("find interaction by message id", err)
	}
	return in, true, nil
}

// ExistingMessageIDs returns a map with message ids that already exist in storage.
func (p pgInteractions) ExistingMessageIDs(ctx context.Context, messageIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(messageIDs) == 0 {
		return result, nil
	}

	query, args, err := existingMessageIDsQuery(messageIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query existing message ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("scan message id", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows iteration", err)
	}
	return result, nil
}

func (p pgInteractions) FindUnscored(ctx context.Context, limit int) ([]domain.Interaction, error) {
	query, args, err := unscoredQuery(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query unscored", err)
	}
	defer rows.Close()

	var result []domain.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, persistErr("scan interaction", err)
		}
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows iteration", err)
	}
	return result, nil
}

func (p pgInteractions) Create(ctx context.Context, interaction *domain.Interaction) error {
	query, args, err := insertInteractionsQuery([]*domain.Interaction{interaction}).
		Suffix("ON CONFLICT (message_id) WHERE message_id IS NOT NULL DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	err = p.tx.QueryRowContext(ctx, query, args...).Scan(&interaction.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDuplicateInteraction
	}
	if err != nil {
		return persistErr("insert interaction", err)
	}
	return nil
}

// CreateMany inserts row by row through one prepared statement, so every
// generated id is read back from the row that produced it.
func (p pgInteractions) CreateMany(ctx context.Context, interactions []*domain.Interaction) error {
	if len(interactions) == 0 {
		return nil
	}

	query, _, err := bulkInsertRow(interactions[0])
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	stmt, err := p.tx.PrepareContext(ctx, query)
	if err != nil {
		return persistErr("prepare interaction insert", err)
	}
	defer stmt.Close()

	for _, interaction := range interactions {
		_, args, err := bulkInsertRow(interaction)
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if err := stmt.QueryRowContext(ctx, args...).Scan(&interaction.ID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return domain.ErrDuplicateInteraction
			}
			return persistErr("bulk insert interactions", err)
		}
	}
	return nil
}

func (p pgInteractions) ApplySentiment(ctx context.Context, id int64, score int, flag domain.SentimentFlag) error {
	query, args, err := applySentimentQuery(id, score, flag).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var updated int64
	err = p.tx.QueryRowContext(ctx, query, args...).Scan(&updated)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return persistErr("apply sentiment", err)
	}

	if _, findErr := p.FindByID(ctx, id); findErr != nil {
		return findErr
	}
	return domain.ErrAlreadyScored
}

type pgQueue pgRepos

func (p pgQueue) Insert(ctx context.Context, item *domain.QueueItem) (bool, error) {
	query, args, err := insertQueueItemQuery(item).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	err = p.tx.QueryRowContext(ctx, query, args...).Scan(&item.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistErr("insert queue item", err)
	}
	item.Processed = false
	return true, nil
}

func (p pgQueue) FindByID(ctx context.Context, id int64) (domain.QueueItem, error) {
	query, args, err := psql.Select("id", "interaction_id", "priority", "enqueued_at", "processed").
		From("sentiment_queue").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.QueueItem{}, fmt.Errorf("build query: %w", err)
	}

	var item domain.QueueItem
	err = p.tx.QueryRowContext(ctx, query, args...).Scan(
		&item.ID, &item.InteractionID, &item.Priority, &item.EnqueuedAt, &item.Processed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueueItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.QueueItem{}, persistErr("find queue item", err)
	}
	return item, nil
}

func (p pgQueue) ListUnprocessed(ctx context.Context, after *domain.QueueCursor, limit int) ([]domain.QueueEntry, error) {
	query, args, err := listUnprocessedQuery(after, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query unprocessed", err)
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(
			&e.Item.ID, &e.Item.InteractionID, &e.Item.Priority, &e.Item.EnqueuedAt, &e.Item.Processed,
			&e.Message, &e.Language,
		); err != nil {
			return nil, persistErr("scan queue entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows iteration", err)
	}
	return entries, nil
}

func (p pgQueue) MarkProcessed(ctx context.Context, id int64) error {
	query, args, err := psql.Update("sentiment_queue").
		Set("processed", true).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var updated int64
	err = p.tx.QueryRowContext(ctx, query, args...).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return persistErr("mark processed", err)
	}
	return nil
}

func (p pgQueue) CountUnprocessed(ctx context.Context) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("sentiment_queue").Where(sq.Eq{"processed": false}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := p.tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, persistErr("count unprocessed", err)
	}
	return count, nil
}

func existingMessageIDsQuery(messageIDs []string) sq.SelectBuilder {
	return psql.Select("message_id").
		From("interactions").
		Where("message_id = ANY(?)", pq.StringArray(messageIDs))
}

func unscoredQuery(limit int) sq.SelectBuilder {
	b := psql.Select(interactionColumns...).
		From("interactions").
		Where(sq.Eq{"sentiment": nil}).
		Where(sq.NotEq{"message": nil}).
		Where("btrim(message) <> ''").
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}

func insertInteractionsQuery(interactions []*domain.Interaction) sq.InsertBuilder {
	b := psql.Insert("interactions").Columns(
		"message_id", "provider", "kind", "state", "author", "url",
		"message", "language", "sentiment", "sentiment_flag", "created_at",
	)
	for _, in := range interactions {
		b = b.Values(
			nullString(in.MessageID),
			in.Provider,
			string(in.Kind),
			string(in.State),
			in.Author,
			in.URL,
			nullString(in.Message),
			in.Language,
			nullSentiment(in.Sentiment),
			nullString(string(in.Flag)),
			in.CreatedAt,
		)
	}
	return b
}

// bulkInsertRow yields the same statement text for every interaction.
func bulkInsertRow(interaction *domain.Interaction) (string, []any, error) {
	return insertInteractionsQuery([]*domain.Interaction{interaction}).Suffix("RETURNING id").ToSql()
}

func applySentimentQuery(id int64, score int, flag domain.SentimentFlag) sq.UpdateBuilder {
	return psql.Update("interactions").
		Set("sentiment", score).
		Set("sentiment_flag", nullString(string(flag))).
		Where(sq.Eq{"id": id, "sentiment": nil}).
		Suffix("RETURNING id")
}

func insertQueueItemQuery(item *domain.QueueItem) sq.InsertBuilder {
	return psql.Insert("sentiment_queue").
		Columns("interaction_id", "priority", "enqueued_at").
		Values(item.InteractionID, item.Priority, item.EnqueuedAt).
		Suffix("ON CONFLICT (interaction_id) WHERE processed = FALSE DO NOTHING RETURNING id")
}

func listUnprocessedQuery(after *domain.QueueCursor, limit int) sq.SelectBuilder {
	b := psql.Select(
		"q.id", "q.interaction_id", "q.priority", "q.enqueued_at", "q.processed",
		"COALESCE(i.message, '')", "i.language",
	).
		From("sentiment_queue q").
		Join("interactions i ON i.id = q.interaction_id").
		Where(sq.Eq{"q.processed": false}).
		OrderBy("q.priority", "q.enqueued_at", "q.id")
	if after != nil {
		b = b.Where("(q.priority, q.enqueued_at, q.id) > (?, ?, ?)", after.Priority, after.EnqueuedAt, after.ID)
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (domain.Interaction, error) {
	var (
		in        domain.Interaction
		messageID sql.NullString
		message   sql.NullString
		sentiment sql.NullInt64
		flag      sql.NullString
		kind      string
		state     string
	)
	err := row.Scan(
		&in.ID, &messageID, &in.Provider, &kind, &state, &in.Author, &in.URL,
		&message, &in.Language, &sentiment, &flag, &in.CreatedAt,
	)
	if err != nil {
		return domain.Interaction{}, err
	}

	in.MessageID = messageID.String
	in.Message = message.String
	in.Kind = domain.InteractionKind(kind)
	in.State = domain.InteractionState(state)
	in.Sentiment = domain.NoSentiment
	if sentiment.Valid {
		in.Sentiment = int(sentiment.Int64)
	}
	if f, ok := domain.ParseSentimentFlag(flag.String); ok {
		in.Flag = f
	}
	return in, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}

func nullSentiment(score int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(score), Valid: score >= 0}
}
