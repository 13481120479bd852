// Package sqlite is the gateway for generated-query execution and the
// per-turn audit log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/storage/models"
	"github.com/quality-agent/backend/pkg/logger"
)

// ExecutionError wraps a failed generated query together with the query text
// so the pipeline can surface it as diagnostic metadata.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ` + knowledge.TableQuality + ` (
		DAY_CD TEXT NOT NULL,
		ITEM_TYPE_GROUP_NAME TEXT,
		EX_A_MAST_GD_CAU_NM TEXT,
		END_USER_NAME TEXT,
		QLY_INC_HPN_FAC_TP_NM TEXT,
		QLY_INC_RESP_FAC_TP_NM TEXT,
		SPECIFICATION_CD_N TEXT,
		TR_F_PRODQUANTITY REAL NOT NULL DEFAULT 0,
		QLY_INC_HPW REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_quality_day ON ` + knowledge.TableQuality + `(DAY_CD);
	CREATE INDEX IF NOT EXISTS idx_quality_item ON ` + knowledge.TableQuality + `(ITEM_TYPE_GROUP_NAME);
	CREATE INDEX IF NOT EXISTS idx_quality_user ON ` + knowledge.TableQuality + `(END_USER_NAME);

	CREATE TABLE IF NOT EXISTS ` + knowledge.TableClaims + ` (
		END_USER_NAME TEXT,
		ITEM_TYPE_GROUP_NAME TEXT,
		RMA_QTY REAL NOT NULL DEFAULT 0,
		EXPECTED_RESOLUTION_DATE TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_claims_user ON ` + knowledge.TableClaims + `(END_USER_NAME);

	CREATE TABLE IF NOT EXISTS ` + knowledge.TableSales + ` (
		END_USER_NAME TEXT,
		ITEM_TYPE_GROUP_NAME TEXT,
		SALE_QTY REAL NOT NULL DEFAULT 0,
		SALES_DATE TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sales_user ON ` + knowledge.TableSales + `(END_USER_NAME);
	CREATE INDEX IF NOT EXISTS idx_sales_date ON ` + knowledge.TableSales + `(SALES_DATE);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		utterance TEXT NOT NULL,
		response_type TEXT NOT NULL,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON chat_turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON chat_turns(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// SeedSampleData populates the quality tables with deterministic demo rows
// when they are empty, so a fresh database answers the dashboard queries.
func (c *Client) SeedSampleData() error {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM " + knowledge.TableQuality).Scan(&count); err != nil {
		return fmt.Errorf("failed to check quality table: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	factories := []string{"제1열연공장", "제2열연공장", "후판공장"}
	items := []string{"열연", "후판", "선재"}
	users := []string{"현대제철", "포스코인터내셔널", "세아제강"}
	causes := []string{"UST불량", "표면흠", "치수불량"}

	qualityStmt, err := tx.Prepare(`INSERT INTO ` + knowledge.TableQuality + `
		(DAY_CD, ITEM_TYPE_GROUP_NAME, EX_A_MAST_GD_CAU_NM, END_USER_NAME,
		 QLY_INC_HPN_FAC_TP_NM, QLY_INC_RESP_FAC_TP_NM, SPECIFICATION_CD_N,
		 TR_F_PRODQUANTITY, QLY_INC_HPW)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare quality seed: %w", err)
	}
	defer qualityStmt.Close()

	for year := 2021; year <= 2025; year++ {
		for month := 1; month <= 12; month++ {
			for i, factory := range factories {
				dayCD := fmt.Sprintf("%d%02d15", year, month)
				produced := 8000.0 + float64((year-2021)*500+month*37+i*113)
				defective := produced * (0.008 + 0.002*float64((month+i)%4))

				_, err := qualityStmt.Exec(
					dayCD,
					items[i%len(items)],
					causes[(month+i)%len(causes)],
					users[(year+i)%len(users)],
					factory,
					factories[(i+1)%len(factories)],
					fmt.Sprintf("SPEC-%03d", (month*3+i)%10),
					produced,
					defective,
				)
				if err != nil {
					return fmt.Errorf("failed to seed quality row: %w", err)
				}
			}
		}
	}

	for i, user := range users {
		_, err := tx.Exec(
			`INSERT INTO `+knowledge.TableClaims+` (END_USER_NAME, ITEM_TYPE_GROUP_NAME, RMA_QTY, EXPECTED_RESOLUTION_DATE) VALUES (?, ?, ?, ?)`,
			user, items[i%len(items)], 120.0+float64(i*40), fmt.Sprintf("2025%02d20", i+6),
		)
		if err != nil {
			return fmt.Errorf("failed to seed claim row: %w", err)
		}

		_, err = tx.Exec(
			`INSERT INTO `+knowledge.TableSales+` (END_USER_NAME, ITEM_TYPE_GROUP_NAME, SALE_QTY, SALES_DATE) VALUES (?, ?, ?, ?)`,
			user, items[i%len(items)], 52000.0+float64(i*9000), fmt.Sprintf("2025%02d05", i+3),
		)
		if err != nil {
			return fmt.Errorf("failed to seed sales row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	logger.Info("Sample quality data seeded")
	return nil
}

// Execute runs one generated read query and returns the columns in select
// order plus the rows as column-keyed maps. Row order is whatever the query
// produced; no sort is applied here.
func (c *Client) Execute(ctx context.Context, query string) ([]string, []map[string]interface{}, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, &ExecutionError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, &ExecutionError{Query: query, Err: err}
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, &ExecutionError{Query: query, Err: err}
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// The sqlite driver hands TEXT back as []byte.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, &ExecutionError{Query: query, Err: err}
	}

	logger.Debug("Query executed",
		zap.Int("columns", len(columns)),
		zap.Int("rows", len(result)),
	)

	return columns, result, nil
}

// RecordTurn appends one processed turn to the audit log.
func (c *Client) RecordTurn(sessionID, utterance, responseType string, latencyMS int) error {
	query := `INSERT INTO chat_turns (id, session_id, utterance, response_type, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		uuid.New().String(),
		sessionID,
		utterance,
		responseType,
		latencyMS,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}

	return nil
}

// GetTurnHistory returns the most recent audit rows for a session, newest
// first.
func (c *Client) GetTurnHistory(sessionID string, limit int) ([]models.TurnRecord, error) {
	query := `
		SELECT id, session_id, utterance, response_type, latency_ms, created_at
		FROM chat_turns
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn history: %w", err)
	}
	defer rows.Close()

	var records []models.TurnRecord
	for rows.Next() {
		var r models.TurnRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.SessionID, &r.Utterance, &r.ResponseType, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}
