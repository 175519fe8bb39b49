package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store persists conversation mappings and the webhook audit log. It
// runs on sqlite (default) or postgres, selected by driver name; all
// mutations are single-row, no transactions are used.
type Store struct {
	db     *sqlx.DB
	driver string
}

func init() {
	// modernc registers under "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the database and creates the schema if needed.
func Open(driver, dsn string) (*Store, error) {
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("Mapping store initialized")
	return s, nil
}

func (s *Store) createTables() error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversation_mappings (
			%s,
			cloud_conversation_id TEXT NOT NULL,
			onpremise_ticket_id TEXT NOT NULL,
			onpremise_contact_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			last_agent_reply TEXT NOT NULL DEFAULT '',
			last_agent_name TEXT NOT NULL DEFAULT '',
			last_reply_time TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, idColumn),
		`CREATE INDEX IF NOT EXISTS idx_conversation_mappings_cloud_id
			ON conversation_mappings(cloud_conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_mappings_ticket_id
			ON conversation_mappings(onpremise_ticket_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_mappings_email
			ON conversation_mappings(customer_email)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_logs (
			%s,
			webhook_type TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			ticket_id TEXT NOT NULL DEFAULT '',
			contact_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			raw_data TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`, idColumn),
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks store connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
