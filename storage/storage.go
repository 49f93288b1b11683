package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// NewSqliteDB creates a new sqlite database
func NewSqliteDB(file string) (*sqlx.DB, error) {
	return sqlx.Connect("sqlite", file)
}

// Store groups the tables of one database file
type Store struct {
	DB       *sqlx.DB
	Sessions *Sessions
	Messages *Messages
	Tokens   *Tokens
}

// Open connects to file and creates any missing tables
func Open(file string) (*Store, error) {
	db, err := NewSqliteDB(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", file, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	sessions, err := NewSessions(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	messages, err := NewMessages(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	tokens, err := NewTokens(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db, Sessions: sessions, Messages: messages, Tokens: tokens}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
