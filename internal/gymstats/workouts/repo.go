package workouts

import (
	"context"
	"time"

	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type ListParams struct {
	ExerciseID         string
	From               *time.Time
	To                 *time.Time
	OnlyProd           bool
	ExcludeTestingData bool
}

// SetRow is a single recorded set, as stored in the exercise table.
type SetRow struct {
	ExerciseID string
	Kilos      int
	Reps       int
	CreatedAt  time.Time
}

// Repo reads workout sessions from the exercise table.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) ListSessions(ctx context.Context, params ListParams) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sessions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise_id", params.ExerciseID))
	span.SetAttributes(attribute.Bool("only-prod", params.OnlyProd))
	span.SetAttributes(attribute.Bool("exclude-testing-data", params.ExcludeTestingData))
	if params.From != nil {
		span.SetAttributes(attribute.String("from", params.From.String()))
	}
	if params.To != nil {
		span.SetAttributes(attribute.String("to", params.To.String()))
	}

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				exercise_id, kilos, reps, created_at
			FROM exercise
				WHERE ($1::text = '' OR exercise_id = $1)
				AND ($2::timestamp IS NULL OR created_at >= $2)
				AND ($3::timestamp IS NULL OR created_at <= $3)
				AND ($4::boolean IS FALSE OR metadata->>'env' = 'prod' OR metadata->>'env' = 'production')
				AND ($5::boolean IS FALSE OR (COALESCE(metadata->>'testing', '') != 'true' AND COALESCE(metadata->>'test', '') != 'true'))
			ORDER BY created_at ASC;`,
		params.ExerciseID, params.From, params.To,
		params.OnlyProd, params.ExcludeTestingData,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	setRows, err := rows2sets(rows)
	if err != nil {
		return nil, err
	}

	sessions := GroupSessions(setRows)
	span.SetAttributes(attribute.Int("sets", len(setRows)))
	span.SetAttributes(attribute.Int("sessions", len(sessions)))

	return sessions, nil
}

func rows2sets(rows pgx.Rows) ([]SetRow, error) {
	var sets []SetRow
	for rows.Next() {
		var s SetRow
		if err := rows.Scan(&s.ExerciseID, &s.Kilos, &s.Reps, &s.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sets, nil
}

// GroupSessions folds recorded sets into one session per UTC day. Exercises keep
// the order in which they were first performed that day, and the session duration
// spans the first to the last set.
func GroupSessions(rows []SetRow) []Session {
	type day struct {
		session    Session
		first      time.Time
		last       time.Time
		exerciseIx map[string]int
	}

	var order []string
	days := make(map[string]*day)
	for _, r := range rows {
		ts := r.CreatedAt.UTC()
		key := ts.Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			y, m, dd := ts.Date()
			d = &day{
				session:    Session{Date: time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)},
				first:      ts,
				last:       ts,
				exerciseIx: make(map[string]int),
			}
			days[key] = d
			order = append(order, key)
		}
		if ts.Before(d.first) {
			d.first = ts
		}
		if ts.After(d.last) {
			d.last = ts
		}

		ix, ok := d.exerciseIx[r.ExerciseID]
		if !ok {
			ix = len(d.session.Exercises)
			d.exerciseIx[r.ExerciseID] = ix
			d.session.Exercises = append(d.session.Exercises, ExerciseEntry{Name: r.ExerciseID})
		}
		d.session.Exercises[ix].Sets = append(d.session.Exercises[ix].Sets, Set{
			Weight: float64(r.Kilos),
			Reps:   r.Reps,
		})
	}

	sessions := make([]Session, 0, len(order))
	for _, key := range order {
		d := days[key]
		d.session.Duration = d.last.Sub(d.first).Seconds()
		sessions = append(sessions, d.session)
	}

	return sessions
}
