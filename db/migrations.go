package db

import (
	"database/sql"
	"log"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		acct VARCHAR(100) UNIQUE NOT NULL,
		last_post_id BIGINT DEFAULT -1,
		last_synced_all_post_id BIGINT DEFAULT -1,
		fetch_error_count INTEGER DEFAULT 0,
		unlisted INTEGER DEFAULT 0,
		sensitive INTEGER DEFAULT 0,
		deactivated INTEGER DEFAULT 0,
		last_sync TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT NOT NULL
	)`

	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		id TEXT NOT NULL PRIMARY KEY,
		acct TEXT NOT NULL,
		host TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		posting_error_count INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(acct, host)
	)`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(follower_id, account_id)
	)`

	sqlCreateModerationRulesTable = `CREATE TABLE IF NOT EXISTS moderation_rules (
		id TEXT NOT NULL PRIMARY KEY,
		entity TEXT NOT NULL,
		pattern TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(entity, pattern, kind)
	)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsTable = `CREATE TABLE IF NOT EXISTS remote_actors (
		id TEXT NOT NULL PRIMARY KEY,
		acct TEXT NOT NULL,
		host TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		public_key_pem TEXT NOT NULL,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateIndices = `
		CREATE INDEX IF NOT EXISTS idx_accounts_last_sync ON accounts(last_sync);
		CREATE INDEX IF NOT EXISTS idx_followers_actor_uri ON followers(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_follows_account_id ON follows(account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_follower_id ON follows(follower_id);
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
		CREATE INDEX IF NOT EXISTS idx_remote_actors_actor_uri ON remote_actors(actor_uri);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			sql  string
		}{
			{"accounts", sqlCreateAccountsTable},
			{"followers", sqlCreateFollowersTable},
			{"follows", sqlCreateFollowsTable},
			{"moderation_rules", sqlCreateModerationRulesTable},
			{"delivery_queue", sqlCreateDeliveryQueueTable},
			{"remote_actors", sqlCreateRemoteActorsTable},
		}
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(sqlCreateIndices); err != nil {
			log.Printf("Warning: Failed to create indices: %v", err)
		}
		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
