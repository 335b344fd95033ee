package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/models"
)

const challengeColumns = `id, game_id, initiator_id, opponent_id,
	initiator_result, initiator_completed_at, opponent_result, opponent_completed_at,
	status, outcome, winner_id,
	notified_opponent_new, notified_initiator_result, notified_opponent_result,
	created_at, expires_at`

type challengeRow struct {
	ID                      string           `db:"id"`
	GameID                  string           `db:"game_id"`
	InitiatorID             string           `db:"initiator_id"`
	OpponentID              string           `db:"opponent_id"`
	InitiatorResult         models.MetricBag `db:"initiator_result"`
	InitiatorCompletedAt    sql.NullTime     `db:"initiator_completed_at"`
	OpponentResult          models.MetricBag `db:"opponent_result"`
	OpponentCompletedAt     sql.NullTime     `db:"opponent_completed_at"`
	Status                  string           `db:"status"`
	Outcome                 string           `db:"outcome"`
	WinnerID                sql.NullString   `db:"winner_id"`
	NotifiedOpponentNew     bool             `db:"notified_opponent_new"`
	NotifiedInitiatorResult bool             `db:"notified_initiator_result"`
	NotifiedOpponentResult  bool             `db:"notified_opponent_result"`
	CreatedAt               time.Time        `db:"created_at"`
	ExpiresAt               time.Time        `db:"expires_at"`
}

func (r challengeRow) toDomain() models.Challenge {
	c := models.Challenge{
		ID:                      r.ID,
		GameID:                  r.GameID,
		InitiatorID:             r.InitiatorID,
		OpponentID:              r.OpponentID,
		InitiatorResult:         r.InitiatorResult,
		OpponentResult:          r.OpponentResult,
		Status:                  models.ChallengeStatus(r.Status),
		NotifiedOpponentNew:     r.NotifiedOpponentNew,
		NotifiedInitiatorResult: r.NotifiedInitiatorResult,
		NotifiedOpponentResult:  r.NotifiedOpponentResult,
		CreatedAt:               r.CreatedAt,
		ExpiresAt:               r.ExpiresAt,
	}
	if r.InitiatorCompletedAt.Valid {
		t := r.InitiatorCompletedAt.Time
		c.InitiatorCompletedAt = &t
	}
	if r.OpponentCompletedAt.Valid {
		t := r.OpponentCompletedAt.Time
		c.OpponentCompletedAt = &t
	}
	switch models.OutcomeKind(r.Outcome) {
	case models.OutcomeTie:
		c.Outcome = models.Outcome{Kind: models.OutcomeTie}
	case models.OutcomeWinner:
		c.Outcome = models.Outcome{Kind: models.OutcomeWinner, WinnerID: r.WinnerID.String}
	}
	return c
}

// Postgres stores challenges in the challenges table and joins the profiles
// projection onto fetched rows. It uses plain row reads and conditional
// updates only.
type Postgres struct {
	db  *sqlx.DB
	ttl time.Duration
	pub Publisher
}

func NewPostgres(db *sqlx.DB, ttl time.Duration, pub Publisher) *Postgres {
	return &Postgres{db: db, ttl: ttl, pub: pub}
}

func storeErr(op string, err error) error {
	return &challenge.StoreError{Op: op, Err: err}
}

func (p *Postgres) Create(ctx context.Context, gameID, initiatorID, opponentID string) (*models.Challenge, error) {
	now := time.Now().UTC()
	var row challengeRow
	err := p.db.GetContext(ctx, &row, `
		INSERT INTO challenges (id, game_id, initiator_id, opponent_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING `+challengeColumns,
		uuid.NewString(), gameID, initiatorID, opponentID, now, now.Add(p.ttl))
	if err != nil {
		return nil, storeErr("create", err)
	}
	c := row.toDomain()
	if err := p.attachProfiles(ctx, []*models.Challenge{&c}); err != nil {
		// the row exists; a missing projection only affects display
		c.Initiator, c.Opponent = nil, nil
	}
	publish(ctx, p.pub, EventInsert, c)
	return &c, nil
}

func (p *Postgres) FetchForUser(ctx context.Context, userID, gameID string) ([]models.Challenge, error) {
	var rows []challengeRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE (initiator_id = $1 OR opponent_id = $1)
		  AND ($2 = '' OR game_id = $2)
		ORDER BY created_at DESC, id DESC`, userID, gameID)
	if err != nil {
		return nil, storeErr("fetch", err)
	}

	out := make([]models.Challenge, len(rows))
	ptrs := make([]*models.Challenge, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
		ptrs[i] = &out[i]
	}
	if err := p.attachProfiles(ctx, ptrs); err != nil {
		return nil, storeErr("fetch profiles", err)
	}
	return out, nil
}

func (p *Postgres) SubmitResult(ctx context.Context, challengeID, userID string, bag models.MetricBag) (*models.Challenge, error) {
	current, err := p.get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	role, err := challenge.ResolveRole(current, userID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	changed, err := challenge.ApplyResult(&next, role, bag, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		if err := p.attachProfiles(ctx, []*models.Challenge{current}); err != nil {
			return nil, storeErr("submit profiles", err)
		}
		return current, nil
	}

	var row challengeRow
	switch role {
	case models.RoleInitiator:
		err = p.db.GetContext(ctx, &row, `
			UPDATE challenges
			SET initiator_result = $2, initiator_completed_at = NOW()
			WHERE id = $1 AND initiator_completed_at IS NULL
			RETURNING `+challengeColumns,
			challengeID, next.InitiatorResult)
	case models.RoleOpponent:
		var winner sql.NullString
		if w := next.WinnerID(); w != nil {
			winner = sql.NullString{String: *w, Valid: true}
		}
		err = p.db.GetContext(ctx, &row, `
			UPDATE challenges
			SET opponent_result = $2, opponent_completed_at = NOW(),
			    status = 'completed', outcome = $3, winner_id = $4
			WHERE id = $1
			  AND opponent_completed_at IS NULL
			  AND initiator_completed_at IS NOT NULL
			RETURNING `+challengeColumns,
			challengeID, next.OpponentResult, string(next.Outcome.Kind), winner)
	}
	if errors.Is(err, sql.ErrNoRows) {
		// lost a race with a duplicate submission for the same role
		current, err = p.get(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		if err := p.attachProfiles(ctx, []*models.Challenge{current}); err != nil {
			return nil, storeErr("submit profiles", err)
		}
		return current, nil
	}
	if err != nil {
		return nil, storeErr("submit", err)
	}

	c := row.toDomain()
	if err := p.attachProfiles(ctx, []*models.Challenge{&c}); err != nil {
		c.Initiator, c.Opponent = nil, nil
	}
	publish(ctx, p.pub, EventUpdate, c)
	return &c, nil
}

func (p *Postgres) MarkAcknowledged(ctx context.Context, challengeID string, flag models.AckFlag) error {
	col, err := ackColumn(flag)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE challenges SET `+col+` = TRUE WHERE id = $1`, challengeID)
	if err != nil {
		return storeErr("ack", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return challenge.ErrNotFound
	}
	return nil
}

func (p *Postgres) get(ctx context.Context, challengeID string) (*models.Challenge, error) {
	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, challenge.ErrNotFound
	}
	var row challengeRow
	err := p.db.GetContext(ctx, &row, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, challengeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	c := row.toDomain()
	return &c, nil
}

// attachProfiles loads both parties' profiles for every row with one IN query.
func (p *Postgres) attachProfiles(ctx context.Context, rows []*models.Challenge) error {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(rows)*2)
	for _, c := range rows {
		for _, id := range []string{c.InitiatorID, c.OpponentID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	query, args, err := sqlx.In(`SELECT id, display_name, COALESCE(avatar_url, '') AS avatar_url FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	var profiles []models.Profile
	if err := p.db.SelectContext(ctx, &profiles, p.db.Rebind(query), args...); err != nil {
		return err
	}

	byID := make(map[string]models.Profile, len(profiles))
	for _, pr := range profiles {
		byID[pr.ID] = pr
	}
	for _, c := range rows {
		if pr, ok := byID[c.InitiatorID]; ok {
			c.Initiator = &pr
		}
		if pr, ok := byID[c.OpponentID]; ok {
			c.Opponent = &pr
		}
	}
	return nil
}

func ackColumn(flag models.AckFlag) (string, error) {
	switch flag {
	case models.AckOpponentNew, models.AckInitiatorOutcome, models.AckOpponentOutcome:
		return string(flag), nil
	}
	return "", fmt.Errorf("unknown acknowledgment flag %q", flag)
}
