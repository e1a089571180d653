// Package sessiondb records acquisition sessions and the files they wrote in
// a ClickHouse database. Every method is a no-op when the database is not
// connected, so acquisition never depends on it.
package sessiondb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// DatabaseName is the SQL name of the database.
const DatabaseName = "bcilog"

const timeFormat = "2006-01-02 15:04:05.000000"

var tableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id String, hostname String, version String, githash String, board String,
		sample_rate UInt32, nchannels UInt16,
		start DateTime64(6), end DateTime64(6),
		packets Int64, malformed Int64, missing_packets Int64, partial Int64,
		samples Int64, records Int64, outcome String
	) ENGINE = ReplacingMergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS files (
		session_id String, filename String, filetype String,
		start DateTime64(6), end DateTime64(6),
		records Int64, size Int64, sha256 String
	) ENGINE = MergeTree ORDER BY (session_id, filename)`,
}

// Connection is a (possibly absent) connection to the session database.
type Connection struct {
	conn       clickhouse.Conn
	err        error
	errLock    sync.Mutex
	sessionmsg chan *SessionMessage
	filemsg    chan *FileMessage
	abort      chan struct{}
	sync.WaitGroup
}

// IsConnected reports whether messages will actually be stored.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.Err() == nil)
}

// Err returns the error that disconnected the database, if any.
func (db *Connection) Err() error {
	if db == nil {
		return nil
	}
	db.errLock.Lock()
	defer db.errLock.Unlock()
	return db.err
}

func (db *Connection) setErr(err error) {
	db.errLock.Lock()
	defer db.errLock.Unlock()
	db.err = err
}

// Options returns connection options for addr, taking the credentials from the
// BCILOG_DB_USER and BCILOG_DB_PASSWORD environment variables.
func Options(addr string) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: DatabaseName,
			Username: os.Getenv("BCILOG_DB_USER"),
			Password: os.Getenv("BCILOG_DB_PASSWORD"),
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "bcilog", Version: "unknown"},
			},
		},
		DialTimeout: 5 * time.Second,
	}
}

// Connect opens and pings the database and makes sure the tables exist.
func Connect(opt *clickhouse.Options) (*Connection, error) {
	conn, err := clickhouse.Open(opt)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			err = fmt.Errorf("exception [%d] %s", exception.Code, exception.Message)
		}
		conn.Close()
		return nil, err
	}
	for _, ddl := range tableDefinitions {
		if err = conn.Exec(ctx, ddl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &Connection{conn: conn}, nil
}

// Start connects to the database and starts the goroutine that stores
// messages. On failure it returns a disconnected Connection, whose methods
// do nothing, along with the error.
func Start(opt *clickhouse.Options) (*Connection, error) {
	db, err := Connect(opt)
	if err != nil {
		return &Connection{err: err}, err
	}
	db.sessionmsg = make(chan *SessionMessage)
	db.filemsg = make(chan *FileMessage)
	db.abort = make(chan struct{})
	db.Add(1)
	go db.handleConnection()
	return db, nil
}

func (db *Connection) handleConnection() {
	defer db.Done()
	for {
		select {
		case <-db.abort:
			db.conn.Close()
			return
		case smsg := <-db.sessionmsg:
			db.handleSessionMessage(smsg)
		case fmsg := <-db.filemsg:
			db.handleFileMessage(fmsg)
		}
	}
}

// Close stops the storing goroutine after the messages already handed to it
// and closes the connection.
func (db *Connection) Close() {
	if db == nil || db.abort == nil {
		return
	}
	close(db.abort)
	db.Wait()
	db.abort = nil
}

// RecordSession stores a SessionMessage. It blocks until the message is taken,
// so that a session row exists before any file rows refer to it.
func (db *Connection) RecordSession(msg *SessionMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.sessionmsg <- msg
}

// FinishSession stores the final state of a session.
func (db *Connection) FinishSession(msg *SessionMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	if msg.End.IsZero() {
		msg.End = time.Now()
	}
	db.sessionmsg <- msg
}

// RecordFile stores a FileMessage.
func (db *Connection) RecordFile(msg *FileMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.filemsg <- msg
}

func (db *Connection) handleSessionMessage(m *SessionMessage) {
	ctx := context.Background()
	const wait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, wait,
		m.ID, m.Hostname, m.Version, m.Githash, m.Board,
		m.SampleRate, m.Nchannels, formatTime(m.Start), formatTime(m.End),
		m.Packets, m.Malformed, m.MissingPackets, m.Partial, m.Samples, m.Records, m.Outcome,
	); err != nil {
		fmt.Fprintln(os.Stderr, "Error raised on AsyncInsert into sessions ", err)
		db.setErr(err)
	}
}

func (db *Connection) handleFileMessage(m *FileMessage) {
	ctx := context.Background()
	const wait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO files VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, wait,
		m.SessionID, m.Filename, m.Filetype, formatTime(m.Start), formatTime(m.End),
		m.Records, m.Size, m.SHA256,
	); err != nil {
		fmt.Fprintln(os.Stderr, "Error raised on AsyncInsert into files ", err)
		db.setErr(err)
	}
}

// formatTime renders t for a DateTime64(6) column, storing the zero time as the Unix epoch.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Unix(0, 0).UTC().Format(timeFormat)
	}
	return t.UTC().Format(timeFormat)
}
