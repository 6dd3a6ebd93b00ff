package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	_ "github.com/sijms/go-ora/v2"

	"parcelmap/internal/config"
	"parcelmap/internal/types"
)

// Schema is the archive table ArchiveSurfaces writes to.
const Schema = `
CREATE TABLE PARCEL_SURFACES (
	RUN_ID        VARCHAR2(36)  NOT NULL,
	IDU           VARCHAR2(14)  NOT NULL,
	TOTAL_M2      NUMBER(14,2),
	BUILT_M2      NUMBER(14,2),
	UNBUILT_M2    NUMBER(14,2),
	OCCUPANCY_PCT NUMBER(7,3),
	CREATED_AT    TIMESTAMP     NOT NULL,
	CONSTRAINT PARCEL_SURFACES_PK PRIMARY KEY (RUN_ID, IDU)
)`

const insertSurface = `
	INSERT INTO PARCEL_SURFACES
		(RUN_ID, IDU, TOTAL_M2, BUILT_M2, UNBUILT_M2, OCCUPANCY_PCT, CREATED_AT)
	VALUES (:1, :2, :3, :4, :5, :6, :7)
`

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// Use wallet-based mTLS connection
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(username, password), // escapes automatically
		Host:     host + ":" + port,
		Path:     "/" + service, // keep full service name
		RawQuery: "ssl=true",    // ADB requires TCPS on 1522
	}).String()
}

// Database holds the archive connection.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the connection and pings it.
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	connStr := dsn(cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Service, cfg.WalletLocation)

	slog.Debug("connecting to Oracle", "host", cfg.Host, "service", cfg.Service)

	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// ArchiveSurfaces stores every record under runID in a single transaction.
func (d *Database) ArchiveSurfaces(ctx context.Context, runID string, records []types.SurfaceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSurface)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, surfaceArgs(runID, now, r)...); err != nil {
			return fmt.Errorf("archive %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	slog.Info("archived surfaces", "run", runID, "rows", len(records))
	return nil
}

// QueryParcelHistory returns every archived record of id, newest first.
func (d *Database) QueryParcelHistory(ctx context.Context, id types.ParcelID) ([]ArchivedSurface, error) {
	query := `
		SELECT RUN_ID, CREATED_AT, TOTAL_M2, BUILT_M2, UNBUILT_M2, OCCUPANCY_PCT
		FROM PARCEL_SURFACES
		WHERE IDU = :1
		ORDER BY CREATED_AT DESC
	`
	rows, err := d.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query parcel history: %w", err)
	}
	defer rows.Close()

	var out []ArchivedSurface
	for rows.Next() {
		a := ArchivedSurface{Record: types.SurfaceRecord{ID: id}}
		if err := rows.Scan(&a.RunID, &a.CreatedAt,
			&a.Record.TotalArea, &a.Record.BuiltArea, &a.Record.UnbuiltArea, &a.Record.OccupancyRate); err != nil {
			return nil, fmt.Errorf("failed to scan parcel history: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArchivedSurface is one stored SurfaceRecord.
type ArchivedSurface struct {
	RunID     string
	CreatedAt time.Time
	Record    types.SurfaceRecord
}

func surfaceArgs(runID string, at time.Time, r types.SurfaceRecord) []any {
	return []any{
		runID,
		r.ID.String(),
		round(r.TotalArea, 2),
		round(r.BuiltArea, 2),
		round(r.UnbuiltArea, 2),
		round(r.OccupancyRate, 3),
		at,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
