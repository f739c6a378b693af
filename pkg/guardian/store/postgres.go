package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

const sessionColumns = `id, room_name, agent_config_id, status, backend,
	avg_sentiment, min_sentiment, max_risk_level, message_count, sentiment_count,
	human_active, takeover_at, takeover_by, active_agent_id, started_at, ended_at`

// riskRankSQL orders risk levels inside SQL so concurrent max-merges converge
// without read-modify-write races.
const riskRankSQL = `array_position(ARRAY['LOW','MEDIUM','HIGH','CRITICAL'], %s)`

func (p *Postgres) StartSession(ctx context.Context, id, roomName, agentConfigID string, backend types.Backend) (*types.Session, bool, error) {
	// The partial unique index on (room_name) WHERE status='active' makes
	// this race-safe: concurrent starts for one room insert at most one row.
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO guardian_sessions (id, room_name, agent_config_id, status, backend, max_risk_level, started_at)
		VALUES ($1, $2, NULLIF($3, ''), 'active', $4, 'LOW', now())
		ON CONFLICT DO NOTHING`,
		id, roomName, agentConfigID, string(backend))
	if err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	created := tag.RowsAffected() > 0

	sess, err := p.FindActiveByRoom(ctx, roomName)
	if err == nil {
		return sess, created, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	// The insert conflicted on id rather than room (producer restarted an
	// ended session id). Fall back to the row itself.
	sess, err = p.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, created, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM guardian_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *Postgres) FindActiveByRoom(ctx context.Context, roomName string) (*types.Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM guardian_sessions
		 WHERE room_name = $1 AND status IN ('active', 'takeover')`, roomName)
	return scanSession(row)
}

func (p *Postgres) EndSession(ctx context.Context, id string, endedAt time.Time) (*types.Session, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE guardian_sessions
		SET status = 'completed', ended_at = $2
		WHERE id = $1
		RETURNING `+sessionColumns, id, endedAt)
	return scanSession(row)
}

func (p *Postgres) ApplyRisk(ctx context.Context, id string, level types.RiskLevel) (*types.Session, error) {
	query := fmt.Sprintf(`
		UPDATE guardian_sessions
		SET max_risk_level = CASE
			WHEN `+riskRankSQL+` > `+riskRankSQL+` THEN $2
			ELSE max_risk_level END,
		    message_count = message_count + 1
		WHERE id = $1
		RETURNING `+sessionColumns, "$2", "max_risk_level")
	row := p.pool.QueryRow(ctx, query, id, string(level))
	return scanSession(row)
}

func (p *Postgres) ApplySentiment(ctx context.Context, id string, value float64) (*types.Session, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE guardian_sessions
		SET avg_sentiment = CASE WHEN sentiment_count = 0 THEN $2
			ELSE (avg_sentiment * sentiment_count + $2) / (sentiment_count + 1) END,
		    min_sentiment = CASE WHEN sentiment_count = 0 THEN $2
			ELSE LEAST(min_sentiment, $2) END,
		    sentiment_count = sentiment_count + 1,
		    message_count = message_count + 1
		WHERE id = $1
		RETURNING `+sessionColumns, id, value)
	return scanSession(row)
}

func (p *Postgres) SetHumanActive(ctx context.Context, id string, active bool, operator string, at time.Time) (*types.Session, error) {
	var row pgx.Row
	if active {
		row = p.pool.QueryRow(ctx, `
			UPDATE guardian_sessions
			SET human_active = TRUE, takeover_at = $2, takeover_by = $3
			WHERE id = $1
			RETURNING `+sessionColumns, id, at, operator)
	} else {
		row = p.pool.QueryRow(ctx, `
			UPDATE guardian_sessions
			SET human_active = FALSE
			WHERE id = $1
			RETURNING `+sessionColumns, id)
	}
	return scanSession(row)
}

func (p *Postgres) SetActiveAgent(ctx context.Context, roomName, agentID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE guardian_sessions SET active_agent_id = $2
		WHERE room_name = $1 AND status IN ('active', 'takeover')`,
		roomName, agentID)
	return err
}

func (p *Postgres) ClearActiveAgent(ctx context.Context, agentID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE guardian_sessions SET active_agent_id = NULL
		WHERE active_agent_id = $1`, agentID)
	return err
}

func (p *Postgres) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM guardian_sessions
		WHERE status IN ('active', 'takeover')
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context) (types.Stats, error) {
	var stats types.Stats
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM guardian_sessions WHERE status IN ('active', 'takeover')),
			(SELECT count(*) FROM guardian_events
				WHERE event_type IN ('RISK_DETECTED', 'SENTIMENT_ALERT')
				AND created_at > now() - interval '24 hours'),
			(SELECT count(*) FROM guardian_events
				WHERE event_type = 'HUMAN_TAKEOVER'
				AND created_at > now() - interval '24 hours'),
			COALESCE((SELECT avg(avg_sentiment) FROM guardian_sessions
				WHERE status IN ('active', 'takeover') AND sentiment_count > 0), 0)`,
	).Scan(&stats.ActiveSessions, &stats.RiskEvents, &stats.HumanTakeovers, &stats.AvgSentiment)
	if err != nil {
		return types.Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	return stats, nil
}

func (p *Postgres) AppendEvent(ctx context.Context, ev *types.Event) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO guardian_events
			(id, session_id, event_type, risk_level, sentiment, keywords, category, text, source, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)`,
		ev.ID, ev.SessionID, string(ev.EventType), string(ev.RiskLevel), ev.Sentiment,
		ev.Keywords, ev.Category, ev.Text, string(ev.Source), ev.Metadata, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (p *Postgres) QueryEvents(ctx context.Context, q EventQuery) ([]*types.Event, map[types.RiskLevel]int, error) {
	where := `WHERE ($1 = '' OR session_id = $1)
		AND ($2 = '' OR event_type = $2)
		AND ($3 = '' OR risk_level = $3)
		AND ($4 = 0 OR created_at > now() - make_interval(hours => $4))`
	args := []any{q.SessionID, string(q.EventType), string(q.RiskLevel), q.Hours}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, event_type, COALESCE(risk_level, ''), sentiment, keywords,
			COALESCE(category, ''), COALESCE(text, ''), source, metadata, created_at
		FROM guardian_events `+where+`
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var ev types.Event
		var eventType, riskLevel, source string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &eventType, &riskLevel, &ev.Sentiment,
			&ev.Keywords, &ev.Category, &ev.Text, &source, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, nil, err
		}
		ev.EventType = types.EventType(eventType)
		ev.RiskLevel = types.RiskLevel(riskLevel)
		ev.Source = types.Source(source)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	histRows, err := p.pool.Query(ctx, `
		SELECT risk_level, count(*) FROM guardian_events `+where+`
		AND risk_level IS NOT NULL
		GROUP BY risk_level`, args...)
	if err != nil {
		return nil, nil, err
	}
	defer histRows.Close()

	histogram := make(map[types.RiskLevel]int)
	for histRows.Next() {
		var level string
		var count int
		if err := histRows.Scan(&level, &count); err != nil {
			return nil, nil, err
		}
		histogram[types.RiskLevel(level)] = count
	}
	return events, histogram, histRows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	var status, backend, risk string
	var agentConfigID, takeoverBy, activeAgentID *string
	err := row.Scan(&s.ID, &s.RoomName, &agentConfigID, &status, &backend,
		&s.AvgSentiment, &s.MinSentiment, &risk, &s.MessageCount, &s.SentimentCount,
		&s.HumanActive, &s.TakeoverAt, &takeoverBy, &activeAgentID, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = types.SessionStatus(status)
	s.Backend = types.Backend(backend)
	s.MaxRiskLevel = types.RiskLevel(risk)
	if agentConfigID != nil {
		s.AgentConfigID = *agentConfigID
	}
	if takeoverBy != nil {
		s.TakeoverBy = *takeoverBy
	}
	if activeAgentID != nil {
		s.ActiveAgentID = *activeAgentID
	}
	normalizeLegacyStatus(&s)
	return &s, nil
}
