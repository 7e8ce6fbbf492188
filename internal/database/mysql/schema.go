package mysql

import (
	"context"
	"fmt"
)

var tables = []struct {
	name       string
	definition string
}{
	{"license", `(
		code VARCHAR(64) NOT NULL,
		group_id BIGINT NOT NULL,
		role_id BIGINT NOT NULL,
		duration_hours INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (code),
		KEY idx_license_group_role (group_id, role_id)
	)`},
	{"licensed_member", `(
		member_id BIGINT NOT NULL,
		group_id BIGINT NOT NULL,
		role_id BIGINT NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		UNIQUE KEY idx_grant_member_role (member_id, role_id),
		KEY idx_grant_expires (expires_at)
	)`},
	{"license_group", `(
		group_id BIGINT NOT NULL,
		default_role_id BIGINT NOT NULL DEFAULT 0,
		default_duration_hours INT NOT NULL,
		max_unused_licenses INT NOT NULL,
		joined_at DATETIME(6) NOT NULL,
		PRIMARY KEY (group_id)
	)`},
	{"licensed_role", `(
		role_id BIGINT NOT NULL,
		group_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (role_id),
		KEY idx_role_group (group_id)
	)`},
}

func (s *MySql) createTables(ctx context.Context) error {
	for _, t := range tables {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s%s %s`, s.prefix, t.name, t.definition)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	return nil
}

func (s *MySql) dropTables(ctx context.Context) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s%s`, s.prefix, t.name)); err != nil {
			return err
		}
	}
	return nil
}
