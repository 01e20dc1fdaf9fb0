package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// join tables have a composite key and no id column
var joinTables = map[string]struct{}{
	"blog_posts_categories": {},
	"blog_posts_tags":       {},
}

// {{ts}} is replaced with the dialect's timestamp type.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS "credentials" (
		"id" TEXT PRIMARY KEY,
		"email" TEXT NOT NULL UNIQUE,
		"Password" TEXT NOT NULL DEFAULT '',
		"password_hash" TEXT NOT NULL DEFAULT '',
		"is_admin" BOOLEAN NOT NULL DEFAULT FALSE,
		"name" TEXT NOT NULL DEFAULT '',
		"created_at" {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS "blog_posts" (
		"id" TEXT PRIMARY KEY,
		"title" TEXT NOT NULL,
		"slug" TEXT NOT NULL UNIQUE,
		"content" TEXT NOT NULL DEFAULT '',
		"excerpt" TEXT NOT NULL DEFAULT '',
		"featured_image_url" TEXT NOT NULL DEFAULT '',
		"status" TEXT NOT NULL DEFAULT 'draft',
		"published_at" {{ts}},
		"author_id" TEXT,
		"meta_title" TEXT,
		"meta_description" TEXT,
		"created_at" {{ts}} DEFAULT CURRENT_TIMESTAMP,
		"updated_at" {{ts}}
	)`,
	`CREATE TABLE IF NOT EXISTS "blog_categories" (
		"id" TEXT PRIMARY KEY,
		"name" TEXT NOT NULL,
		"slug" TEXT NOT NULL UNIQUE,
		"description" TEXT,
		"created_at" {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS "blog_tags" (
		"id" TEXT PRIMARY KEY,
		"name" TEXT NOT NULL,
		"slug" TEXT NOT NULL UNIQUE,
		"created_at" {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS "blog_posts_categories" (
		"post_id" TEXT NOT NULL REFERENCES "blog_posts"("id") ON DELETE CASCADE,
		"category_id" TEXT NOT NULL REFERENCES "blog_categories"("id") ON DELETE CASCADE,
		PRIMARY KEY ("post_id", "category_id")
	)`,
	`CREATE TABLE IF NOT EXISTS "blog_posts_tags" (
		"post_id" TEXT NOT NULL REFERENCES "blog_posts"("id") ON DELETE CASCADE,
		"tag_id" TEXT NOT NULL REFERENCES "blog_tags"("id") ON DELETE CASCADE,
		PRIMARY KEY ("post_id", "tag_id")
	)`,
	`CREATE TABLE IF NOT EXISTS "contact_requests" (
		"id" TEXT PRIMARY KEY,
		"name" TEXT NOT NULL,
		"email" TEXT NOT NULL,
		"service" TEXT NOT NULL,
		"company_name" TEXT NOT NULL DEFAULT '',
		"problems" TEXT NOT NULL DEFAULT '',
		"additional_info" TEXT,
		"created_at" {{ts}} DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the site tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if s.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	for i, m := range migrations {
		if _, err := s.conn.ExecContext(ctx, strings.ReplaceAll(m, "{{ts}}", ts)); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	if s.driver == DriverSQLite {
		if _, err := s.conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return nil
}
