// Package mysql is the SQL implementation of the entitlement store.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/config"
	"net"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

type MySql struct {
	db         *sql.DB
	prefix     string
	statements map[string]*sql.Stmt
	mu         sync.Mutex
}

func NewSQLClient(ctx context.Context, conf *config.Config) (*MySql, error) {
	dsn := mysql.NewConfig()
	dsn.User = conf.MySQL.UserName
	dsn.Passwd = conf.MySQL.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(conf.MySQL.HostName, conf.MySQL.Port)
	dsn.DBName = conf.MySQL.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		if i == 2 {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	return Open(ctx, db, conf.MySQL.Prefix)
}

// Open wraps an established connection pool and creates missing tables.
func Open(ctx context.Context, db *sql.DB, prefix string) (*MySql, error) {
	sdb := &MySql{
		db:         db,
		prefix:     prefix,
		statements: make(map[string]*sql.Stmt),
	}
	if err := sdb.createTables(ctx); err != nil {
		return nil, err
	}
	return sdb, nil
}

func (s *MySql) Close() {
	s.closeStmt()
	_ = s.db.Close()
}

func execError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return entity.ErrDuplicateKey
	}
	return err
}

func (s *MySql) InsertLicense(ctx context.Context, license *entity.License) error {
	stmt, err := s.stmtInsertLicense()
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, license.Code, license.GroupID, license.RoleID, license.DurationHours, license.CreatedAt.UTC())
	if err != nil {
		return execError(err)
	}
	return nil
}

func (s *MySql) GetLicense(ctx context.Context, code string) (*entity.License, error) {
	stmt, err := s.stmtSelectLicense()
	if err != nil {
		return nil, err
	}
	return scanLicense(stmt.QueryRowContext(ctx, code))
}

// PopLicense locks the row, reads and deletes it in one transaction, so a
// code is handed out once even under concurrent redemption.
func (s *MySql) PopLicense(ctx context.Context, code string) (*entity.License, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`SELECT %s FROM %slicense WHERE code = ? FOR UPDATE`, licenseColumns, s.prefix)
	license, err := scanLicense(tx.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}
	stmt, err := s.stmtDeleteLicense()
	if err != nil {
		return nil, err
	}
	if _, err = tx.StmtContext(ctx, stmt).ExecContext(ctx, code); err != nil {
		return nil, fmt.Errorf("delete license: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return license, nil
}

func (s *MySql) DeleteLicense(ctx context.Context, code string) error {
	stmt, err := s.stmtDeleteLicense()
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, code)
	return affectedOne(res, err)
}

func (s *MySql) CountLicenses(ctx context.Context, groupID int64) (int, error) {
	stmt, err := s.stmtCountLicenses()
	if err != nil {
		return 0, err
	}
	var n int
	if err = stmt.QueryRowContext(ctx, groupID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *MySql) ListLicenses(ctx context.Context, groupID, roleID int64, limit int) ([]*entity.License, error) {
	stmt, err := s.stmtListLicenses()
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, groupID, roleID, queryLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanLicenses(rows)
}

func (s *MySql) RandomLicenses(ctx context.Context, groupID int64, limit int) ([]*entity.License, error) {
	stmt, err := s.stmtRandomLicenses()
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, groupID, queryLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanLicenses(rows)
}

func (s *MySql) DeleteGroupLicenses(ctx context.Context, groupID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %slicense WHERE group_id = ?`, s.prefix)
	res, err := s.db.ExecContext(ctx, query, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MySql) InsertGrant(ctx context.Context, grant *entity.Grant) error {
	stmt, err := s.stmtInsertGrant()
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, grant.MemberID, grant.GroupID, grant.RoleID, grant.ExpiresAt.UTC())
	if err != nil {
		return execError(err)
	}
	return nil
}

func (s *MySql) DeleteGrant(ctx context.Context, memberID, roleID int64) error {
	stmt, err := s.stmtDeleteGrant()
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, memberID, roleID)
	return affectedOne(res, err)
}

func (s *MySql) GetGrantExpiration(ctx context.Context, memberID, roleID int64) (time.Time, error) {
	stmt, err := s.stmtGrantExpiration()
	if err != nil {
		return time.Time{}, err
	}
	var expires time.Time
	err = stmt.QueryRowContext(ctx, memberID, roleID).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, entity.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

func (s *MySql) ListGrants(ctx context.Context) ([]*entity.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %slicensed_member ORDER BY expires_at`, grantColumns, s.prefix)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

func (s *MySql) MemberGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error) {
	stmt, err := s.stmtMemberGrants()
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, groupID, memberID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

func (s *MySql) DeleteGroupData(ctx context.Context, groupID int64, includeLicenses bool) error {
	tables := []string{"licensed_member"}
	if includeLicenses {
		tables = append(tables, "license")
	}
	return s.deleteFrom(ctx, tables, "group_id", groupID)
}

func (s *MySql) DeleteRoleData(ctx context.Context, roleID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"licensed_member", "license", "licensed_role"} {
			query := fmt.Sprintf(`DELETE FROM %s%s WHERE role_id = ?`, s.prefix, table)
			if _, err := tx.ExecContext(ctx, query, roleID); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		query := fmt.Sprintf(`UPDATE %slicense_group SET default_role_id = 0 WHERE default_role_id = ?`, s.prefix)
		if _, err := tx.ExecContext(ctx, query, roleID); err != nil {
			return fmt.Errorf("clear default role: %w", err)
		}
		return nil
	})
}

func (s *MySql) SetupGroup(ctx context.Context, settings *entity.GroupSettings) error {
	query := fmt.Sprintf(`INSERT IGNORE INTO %slicense_group
		(group_id, default_role_id, default_duration_hours, max_unused_licenses, joined_at)
		VALUES (?, ?, ?, ?, ?)`, s.prefix)
	_, err := s.db.ExecContext(ctx, query,
		settings.GroupID,
		settings.DefaultRoleID,
		settings.DefaultDurationHours,
		settings.MaxUnusedLicenses,
		settings.JoinedAt.UTC(),
	)
	return err
}

func (s *MySql) GetGroupSettings(ctx context.Context, groupID int64) (*entity.GroupSettings, error) {
	stmt, err := s.stmtSelectGroup()
	if err != nil {
		return nil, err
	}
	var settings entity.GroupSettings
	err = stmt.QueryRowContext(ctx, groupID).Scan(
		&settings.GroupID,
		&settings.DefaultRoleID,
		&settings.DefaultDurationHours,
		&settings.MaxUnusedLicenses,
		&settings.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *MySql) UpdateGroupSettings(ctx context.Context, settings *entity.GroupSettings) error {
	if _, err := s.GetGroupSettings(ctx, settings.GroupID); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %slicense_group SET
                   default_role_id = ?,
                   default_duration_hours = ?,
                   max_unused_licenses = ?
                   WHERE group_id = ?`, s.prefix)
	_, err := s.db.ExecContext(ctx, query,
		settings.DefaultRoleID,
		settings.DefaultDurationHours,
		settings.MaxUnusedLicenses,
		settings.GroupID,
	)
	return err
}

func (s *MySql) RemoveGroup(ctx context.Context, groupID int64) error {
	return s.deleteFrom(ctx, []string{"licensed_member", "license", "licensed_role", "license_group"}, "group_id", groupID)
}

func (s *MySql) SaveRole(ctx context.Context, role *entity.Role) error {
	query := fmt.Sprintf(`INSERT INTO %slicensed_role (role_id, group_id, name) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE group_id = VALUES(group_id), name = VALUES(name)`, s.prefix)
	_, err := s.db.ExecContext(ctx, query, role.ID, role.GroupID, role.Name)
	return err
}

func (s *MySql) GetRole(ctx context.Context, roleID int64) (*entity.Role, error) {
	query := fmt.Sprintf(`SELECT role_id, group_id, name FROM %slicensed_role WHERE role_id = ?`, s.prefix)
	var role entity.Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(&role.ID, &role.GroupID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *MySql) ListRoles(ctx context.Context, groupID int64) ([]*entity.Role, error) {
	query := fmt.Sprintf(`SELECT role_id, group_id, name FROM %slicensed_role WHERE group_id = ? ORDER BY name`, s.prefix)
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var roles []*entity.Role
	for rows.Next() {
		var role entity.Role
		if err = rows.Scan(&role.ID, &role.GroupID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *MySql) deleteFrom(ctx context.Context, tables []string, column string, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			query := fmt.Sprintf(`DELETE FROM %s%s WHERE %s = ?`, s.prefix, table, column)
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *MySql) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// queryLimit turns "no limit" into the largest LIMIT MySQL accepts.
func queryLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<63 - 1
	}
	return int64(limit)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*entity.License, error) {
	var license entity.License
	err := row.Scan(
		&license.Code,
		&license.GroupID,
		&license.RoleID,
		&license.DurationHours,
		&license.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func scanLicenses(rows *sql.Rows) ([]*entity.License, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var licenses []*entity.License
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, license)
	}
	return licenses, rows.Err()
}

func scanGrants(rows *sql.Rows) ([]*entity.Grant, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var grants []*entity.Grant
	for rows.Next() {
		var grant entity.Grant
		if err := rows.Scan(&grant.MemberID, &grant.GroupID, &grant.RoleID, &grant.ExpiresAt); err != nil {
			return nil, err
		}
		grants = append(grants, &grant)
	}
	return grants, rows.Err()
}
