// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/aiku/chatbox/pkg/chatbox/upgrades"
)

// DateTimeFormat is the whole-second timestamp layout of persisted rows.
const DateTimeFormat = time.DateTime

const (
	insertConnectionQuery = `
		INSERT INTO connection (uid, side1_id, side2_id, properties, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	getConnectionBaseQuery = `
		SELECT id, uid, side1_id, side2_id, properties, created_at FROM connection
	`
	getConnectionBySide1Query = getConnectionBaseQuery + `WHERE side1_id=$1`
	getConnectionBySide2Query = getConnectionBaseQuery + `WHERE side2_id=$1`
	getConnectionRowIDQuery   = `SELECT id FROM connection WHERE uid=$1`
	updatePropertiesQuery     = `UPDATE connection SET properties=$2 WHERE uid=$1`
	insertHistoryQuery        = `
		INSERT INTO history (connection_id, created_at, content, origin)
		VALUES ($1, $2, $3, $4)
	`
	getHistoryQuery = `
		SELECT content, created_at, origin FROM history WHERE connection_id=$1 ORDER BY id
	`
)

// Store persists connections and their message history. It is the only
// component that talks to the database.
type Store struct {
	db    *dbutil.Database
	kinds [2]IDKind
	log   zerolog.Logger

	rowIDsLock sync.Mutex
	rowIDs     map[uuid.UUID]int64
}

// OpenStore opens the database described by cfg and brings the schema up to
// date. In debug mode a private in-memory SQLite database is used instead.
func OpenStore(ctx context.Context, cfg *Config, log zerolog.Logger) (*Store, error) {
	dialect, uri := cfg.databaseURI()
	db, err := dbutil.NewWithDialect(uri, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if db.Dialect == dbutil.SQLite {
		// SQLite allows a single writer, and an in-memory database lives
		// only as long as its connection.
		db.RawDB.SetMaxOpenConns(1)
		db.RawDB.SetMaxIdleConns(1)
	}
	db.Owner = "chatbox"
	db.UpgradeTable = upgrades.Table
	db.Log = dbutil.ZeroLogger(log.With().Str("db_section", "main").Logger())
	if err = db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return NewStore(db, cfg.Side1.Kind(), cfg.Side2.Kind(), log), nil
}

// NewStore wraps an already upgraded database.
func NewStore(db *dbutil.Database, side1, side2 IDKind, log zerolog.Logger) *Store {
	return &Store{
		db:     db,
		kinds:  [2]IDKind{side1, side2},
		log:    log.With().Str("component", "store").Logger(),
		rowIDs: make(map[uuid.UUID]int64),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertConnection stores a new connection. It fails with ErrPersistence if
// either side id is already taken.
func (s *Store) InsertConnection(ctx context.Context, conn *Connection) error {
	log := s.log.With().
		Stringer("connection_id", conn.ID()).
		Str("side1_id", conn.Side1ID().String()).
		Str("side2_id", conn.Side2ID().String()).
		Logger()
	if err := conn.Side1ID().checkKind(s.kinds[Side1]); err != nil {
		return err
	}
	if err := conn.Side2ID().checkKind(s.kinds[Side2]); err != nil {
		return err
	}
	props, err := conn.marshalProperties()
	if err != nil {
		log.Err(err).Msg("Failed to marshal connection properties")
		return fmt.Errorf("%w: failed to marshal properties: %v", ErrPersistence, err)
	}
	var rowID int64
	err = s.db.QueryRow(ctx, insertConnectionQuery,
		conn.ID().String(),
		conn.Side1ID().String(),
		conn.Side2ID().String(),
		string(props),
		conn.CreatedAt().UTC().Format(DateTimeFormat),
	).Scan(&rowID)
	if err != nil {
		log.Err(err).Msg("Failed to insert connection")
		return fmt.Errorf("%w: failed to insert connection %s: %v", ErrPersistence, conn.ID(), err)
	}
	s.cacheRowID(conn.ID(), rowID)
	log.Debug().Int64("row_id", rowID).Msg("Inserted connection")
	return nil
}

// FindConnection looks up a connection by one side's external id and attaches
// its full history. It returns a nil connection and no error if nothing is
// stored for the id.
func (s *Store) FindConnection(ctx context.Context, side Side, id ID) (*Connection, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %d", side)
	}
	if err := id.checkKind(s.kinds[side]); err != nil {
		return nil, err
	}
	query := getConnectionBySide1Query
	if side == Side2 {
		query = getConnectionBySide2Query
	}
	var rowID int64
	var uid, side1, side2, props, createdAt string
	err := s.db.QueryRow(ctx, query, id.String()).Scan(&rowID, &uid, &side1, &side2, &props, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Debug().Stringer("side", side).Str("external_id", id.String()).Msg("Connection not found")
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}
	conn, err := s.decodeConnection(uid, side1, side2, props, createdAt)
	if err != nil {
		return nil, err
	}
	s.cacheRowID(conn.id, rowID)
	if err = s.loadHistory(ctx, rowID, conn); err != nil {
		return nil, err
	}
	s.log.Debug().
		Stringer("connection_id", conn.id).
		Int("history_count", conn.historyCount).
		Msg("Loaded connection")
	return conn, nil
}

func (s *Store) decodeConnection(uid, side1, side2, props, createdAt string) (*Connection, error) {
	connID, err := uuid.Parse(uid)
	if err != nil {
		return nil, fmt.Errorf("invalid stored connection id %q: %w", uid, err)
	}
	conn := &Connection{id: connID, properties: make(map[string]any)}
	if conn.side1, err = ParseID(s.kinds[Side1], side1); err != nil {
		return nil, fmt.Errorf("invalid stored side1 id: %w", err)
	}
	if conn.side2, err = ParseID(s.kinds[Side2], side2); err != nil {
		return nil, fmt.Errorf("invalid stored side2 id: %w", err)
	}
	if err = json.Unmarshal([]byte(props), &conn.properties); err != nil {
		return nil, fmt.Errorf("invalid stored properties: %w", err)
	}
	if conn.properties == nil {
		conn.properties = make(map[string]any)
	}
	if conn.createdAt, err = time.ParseInLocation(DateTimeFormat, createdAt, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid stored creation time %q: %w", createdAt, err)
	}
	return conn, nil
}

func (s *Store) loadHistory(ctx context.Context, rowID int64, conn *Connection) error {
	rows, err := s.db.Query(ctx, getHistoryQuery, rowID)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()
	var history []*Message
	for rows.Next() {
		var content, createdAt string
		var origin int
		if err = rows.Scan(&content, &createdAt, &origin); err != nil {
			return fmt.Errorf("failed to scan history row: %w", err)
		}
		ts, err := time.ParseInLocation(DateTimeFormat, createdAt, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid history timestamp %q: %w", createdAt, err)
		}
		history = append(history, &Message{
			ConnectionID: conn.id,
			Origin:       Side(origin),
			Content:      content,
			CreatedAt:    ts,
			conn:         conn,
		})
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	conn.history = history
	conn.historyCount = len(history)
	return nil
}

// AppendMessage adds one row to the history of the message's connection.
// It fails with ErrConnectionNotFound if the connection was never inserted.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	log := s.log.With().
		Stringer("connection_id", msg.ConnectionID).
		Stringer("origin", msg.Origin).
		Logger()
	rowID, err := s.rowID(ctx, msg.ConnectionID)
	if err != nil {
		log.Err(err).Str("content", msg.Content).Msg("Can't append message without a stored connection")
		return err
	}
	_, err = s.db.Exec(ctx, insertHistoryQuery,
		rowID,
		msg.CreatedAt.UTC().Format(DateTimeFormat),
		msg.Content,
		int(msg.Origin),
	)
	if err != nil {
		log.Err(err).Str("content", msg.Content).Msg("Failed to append message")
		return fmt.Errorf("%w: failed to append message: %v", ErrPersistence, err)
	}
	log.Trace().Msg("Appended message")
	return nil
}

// UpdateProperties persists the connection's current property bag.
func (s *Store) UpdateProperties(ctx context.Context, conn *Connection) error {
	props, err := conn.marshalProperties()
	if err != nil {
		return fmt.Errorf("%w: failed to marshal properties: %v", ErrPersistence, err)
	}
	res, err := s.db.Exec(ctx, updatePropertiesQuery, conn.ID().String(), string(props))
	if err != nil {
		s.log.Err(err).Stringer("connection_id", conn.ID()).Msg("Failed to update properties")
		return fmt.Errorf("%w: failed to update properties: %v", ErrPersistence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, conn.ID())
	}
	return nil
}

func (s *Store) cacheRowID(connID uuid.UUID, rowID int64) {
	s.rowIDsLock.Lock()
	s.rowIDs[connID] = rowID
	s.rowIDsLock.Unlock()
}

// rowID resolves a connection id to its table row id. Only hits are cached.
func (s *Store) rowID(ctx context.Context, connID uuid.UUID) (int64, error) {
	s.rowIDsLock.Lock()
	rowID, ok := s.rowIDs[connID]
	s.rowIDsLock.Unlock()
	if ok {
		return rowID, nil
	}
	err := s.db.QueryRow(ctx, getConnectionRowIDQuery, connID.String()).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	} else if err != nil {
		return 0, fmt.Errorf("%w: failed to resolve connection row: %v", ErrPersistence, err)
	}
	s.cacheRowID(connID, rowID)
	return rowID, nil
}

// databaseURI returns the driver name and data source for cfg.
func (cfg *Config) databaseURI() (dialect, uri string) {
	dialect = cfg.Database.Type
	if dialect == "" {
		dialect = "sqlite3"
	}
	switch {
	case cfg.Debug:
		// Each store gets its own in-memory database.
		name := url.PathEscape(cfg.Name + "-" + uuid.NewString())
		return "sqlite3", "file:" + name + "?mode=memory&cache=shared&_foreign_keys=on"
	case cfg.Database.URI != "":
		return dialect, cfg.Database.URI
	default:
		return "sqlite3", "file:" + url.PathEscape(cfg.Name) + ".db?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
}
