package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("wager not found")

const dateLayout = "2006-01-02"

// Querier é o subconjunto comum de *sql.DB e *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres implementa a persistência de apostas em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Conn devolve o pool para operações fora de transação
func (p *Postgres) Conn() Querier { return p.db }

// InTx executa fn numa transação; commit se fn não retornar erro, rollback caso contrário
func (p *Postgres) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const wagerColumns = `id, bettor_a, bettor_b, ticker_a, ticker_b, start_date, end_date, status,
	settled_at, settlement_tx_id, settlement_error, result, created_at, updated_at`

// Create insere uma nova aposta com status OPEN
func (p *Postgres) Create(ctx context.Context, w NewWager) (Wager, error) {
	q := `
		INSERT INTO bets (bettor_a, bettor_b, ticker_a, ticker_b, start_date, end_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,'OPEN')
		RETURNING ` + wagerColumns
	return scanWager(p.db.QueryRowContext(ctx, q,
		w.BettorA, w.BettorB, w.TickerA, w.TickerB,
		w.StartDate.Format(dateLayout), w.EndDate.Format(dateLayout),
	))
}

// Get busca a aposta pelo id; ErrNotFound se não existir
func (p *Postgres) Get(ctx context.Context, q Querier, id string) (Wager, error) {
	w, err := scanWager(q.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM bets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Wager{}, ErrNotFound
	}
	return w, err
}

// List pagina as apostas mais recentes, com filtro opcional de status, e devolve o total
func (p *Postgres) List(ctx context.Context, f ListFilter) ([]Wager, int, error) {
	where := ""
	args := []any{}
	if f.Status != "" {
		where = " WHERE status=$1"
		args = append(args, string(f.Status))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM bets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM bets%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, wagerColumns, where, n+1, n+2)
	rows, err := p.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanWagers(rows)
	return out, total, err
}

// ListDue trava (FOR UPDATE SKIP LOCKED) uma página de apostas abertas vencidas até today,
// na ordem (end_date, id), continuando estritamente depois do cursor.
// Linhas travadas por outro sweep são puladas.
func (p *Postgres) ListDue(ctx context.Context, q Querier, today string, limit int, after *Cursor) ([]Wager, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + wagerColumns + ` FROM bets
		WHERE status = 'OPEN' AND settled_at IS NULL AND end_date <= $1`)
	args := []any{today}
	if after != nil {
		sb.WriteString(` AND (end_date > $2 OR (end_date = $2 AND id > $3))`)
		args = append(args, after.EndDate, after.ID)
	}
	sb.WriteString(fmt.Sprintf(`
		ORDER BY end_date ASC, id ASC
		LIMIT $%d
		FOR UPDATE SKIP LOCKED`, len(args)+1))
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list due wagers: %w", err)
	}
	return scanWagers(rows)
}

// MarkSettled grava o resultado uma única vez: só afeta a linha se ainda estiver OPEN
// e sem settled_at. ok=false quando outra execução já liquidou.
func (p *Postgres) MarkSettled(ctx context.Context, q Querier, id string, res Result, settledAt time.Time, txID string) (Wager, bool, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return Wager{}, false, fmt.Errorf("marshal result: %w", err)
	}
	return conditional(q.QueryRowContext(ctx, `
		UPDATE bets
		SET status='SETTLED', result=$2, settled_at=$3, settlement_tx_id=$4,
		    settlement_error=NULL, updated_at=NOW()
		WHERE id=$1 AND status='OPEN' AND settled_at IS NULL
		RETURNING `+wagerColumns,
		id, payload, settledAt, txID,
	))
}

// MarkInvalid encerra a aposta como INVALID com o diagnóstico; mesma guarda de MarkSettled
func (p *Postgres) MarkInvalid(ctx context.Context, q Querier, id string, reason string) (Wager, bool, error) {
	return conditional(q.QueryRowContext(ctx, `
		UPDATE bets
		SET status='INVALID', settlement_error=$2, result=NULL, updated_at=NOW()
		WHERE id=$1 AND status='OPEN' AND settled_at IS NULL
		RETURNING `+wagerColumns,
		id, reason,
	))
}

// MarkPending só registra o diagnóstico; a aposta continua OPEN para o próximo sweep
func (p *Postgres) MarkPending(ctx context.Context, q Querier, id string, reason string) (Wager, bool, error) {
	return conditional(q.QueryRowContext(ctx, `
		UPDATE bets
		SET settlement_error=$2, updated_at=NOW()
		WHERE id=$1 AND status='OPEN' AND settled_at IS NULL
		RETURNING `+wagerColumns,
		id, reason,
	))
}

func conditional(row *sql.Row) (Wager, bool, error) {
	w, err := scanWager(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Wager{}, false, nil
	}
	if err != nil {
		return Wager{}, false, err
	}
	return w, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWager(s scanner) (Wager, error) {
	var (
		w         Wager
		status    string
		settledAt sql.NullTime
		txID      sql.NullString
		errMsg    sql.NullString
		result    []byte
	)
	err := s.Scan(
		&w.ID, &w.BettorA, &w.BettorB, &w.TickerA, &w.TickerB,
		&w.StartDate, &w.EndDate, &status,
		&settledAt, &txID, &errMsg, &result,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return Wager{}, err
	}

	w.Status = Status(status)
	if settledAt.Valid {
		t := settledAt.Time
		w.SettledAt = &t
	}
	if txID.Valid {
		w.SettlementTxID = &txID.String
	}
	if errMsg.Valid {
		w.SettlementError = &errMsg.String
	}
	if len(result) > 0 && string(result) != "null" {
		var r Result
		if err := json.Unmarshal(result, &r); err != nil {
			return Wager{}, fmt.Errorf("decode result of wager %s: %w", w.ID, err)
		}
		w.Result = &r
	}
	return w, nil
}

func scanWagers(rows *sql.Rows) ([]Wager, error) {
	defer rows.Close()
	var out []Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
