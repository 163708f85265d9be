// Package relstore is the Postgres-backed relational store: correlation
// rules, offences, APT groups, devices, response actions/pipelines and IoC
// sources. Grounded on the teacher's pkg/database.DB wrapper over
// database/sql + lib/pq, and on the original's SQLAlchemy models under
// app/database/postgres_models/ for table shape.
package relstore

import (
	"database/sql"
	"errors"

	"netedge-siem/pkg/database"
	"netedge-siem/pkg/logger"
)

// Store holds the shared Postgres handle every relstore query runs against.
type Store struct {
	db  *database.DB
	log logger.Logger
}

func New(db *database.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
