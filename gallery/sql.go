package gallery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLProvider lists candidates from the lost_pets table.
type SQLProvider struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and checks it is reachable.
func Open(ctx context.Context, driver, dsn string) (*SQLProvider, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "can't open database")
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every new connection to :memory: would be a fresh empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't connect to database")
	}

	return &SQLProvider{db: db, driver: driver}, nil
}

// NewSQLProvider wraps an already opened database.
func NewSQLProvider(db *sql.DB, driver string) *SQLProvider {
	return &SQLProvider{db: db, driver: driver}
}

func (s *SQLProvider) DB() *sql.DB { return s.db }

// Migrate creates the users and lost_pets tables if they do not exist yet.
func (s *SQLProvider) Migrate(ctx context.Context) error {
	ddl, err := schemaFor(s.driver)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "can't apply schema")
	}
	return nil
}

func (s *SQLProvider) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLProvider) ListCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := `SELECT p.id, p.pet_name, p.pet_type, p.breed, p.image_url, u.full_name, p.last_seen_location
	      FROM lost_pets p
	      LEFT JOIN users u ON u.id = p.user_id
	      WHERE p.image_url IS NOT NULL AND p.image_url <> ''
	      ORDER BY p.created_at DESC, p.id DESC
	      LIMIT ` + s.placeholder(1)

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, errors.Wrap(err, "can't list gallery candidates")
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			c                      Candidate
			name, kind             sql.NullString
			breed, owner, location sql.NullString
			imageRef               string
		)
		if err := rows.Scan(&c.ID, &name, &kind, &breed, &imageRef, &owner, &location); err != nil {
			return nil, errors.Wrap(err, "can't scan gallery candidate")
		}
		c.PetName = name.String
		c.PetType = kind.String
		c.ImageRef = imageRef
		c.Breed = nullable(breed)
		c.OwnerName = nullable(owner)
		c.Location = nullable(location)
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration error")
	}

	return candidates, nil
}

func (s *SQLProvider) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLProvider) Close() error {
	return s.db.Close()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
