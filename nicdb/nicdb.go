// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nicdb holds types to describe the adapter inventory and the
// recovery tuning profiles stored in the site database.
package nicdb // import "github.com/go-nic/elx/nicdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// Nic describes one inventoried adapter.
type Nic struct {
	ID       uint32
	PortBase int64
	Variant  string
	IRQ      uint8
	Enabled  bool
}

// Profile is a named recovery tuning profile.
type Profile struct {
	ID        uint32
	Name      string
	PollBound uint32
	Escalate  bool
}

// DB exposes convenience methods to retrieve the adapter inventory and
// the recovery tuning profiles from the site database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the inventory database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("nicdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("nicdb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("nicdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// Nics returns the adapter inventory, enabled adapters only.
func (db *DB) Nics(ctx context.Context) ([]Nic, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var nics []Nic
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, port_base, variant, irq, enabled FROM nics WHERE enabled=1 ORDER BY identifier",
	)
	if err != nil {
		return nics, fmt.Errorf("nicdb: could not query nics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nic Nic
		err = rows.Scan(&nic.ID, &nic.PortBase, &nic.Variant, &nic.IRQ, &nic.Enabled)
		if err != nil {
			return nics, fmt.Errorf("nicdb: could not scan nics: %w", err)
		}
		nics = append(nics, nic)
	}

	if err := rows.Err(); err != nil {
		return nics, fmt.Errorf("nicdb: could not scan db for nics: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nics, fmt.Errorf("nicdb: context error while retrieving nics: %w", err)
	}

	return nics, nil
}

// LastProfile returns the name of the most recently activated recovery
// tuning profile.
func (db *DB) LastProfile(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM profiles ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("nicdb: could not query last profile: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("nicdb: could not get last profile value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("nicdb: could not scan db for last profile: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("nicdb: context error while retrieving last profile: %w", err)
	}

	return name, nil
}

// Profiles returns all recovery tuning profiles.
func (db *DB) Profiles(ctx context.Context) ([]Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var profiles []Profile
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, name, poll_bound, escalate FROM profiles",
	)
	if err != nil {
		return profiles, fmt.Errorf("nicdb: could not query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Profile
		err = rows.Scan(&p.ID, &p.Name, &p.PollBound, &p.Escalate)
		if err != nil {
			return profiles, fmt.Errorf("nicdb: could not scan profiles: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return profiles, fmt.Errorf("nicdb: could not scan db for profiles: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return profiles, fmt.Errorf("nicdb: context error while retrieving profiles: %w", err)
	}

	return profiles, nil
}
