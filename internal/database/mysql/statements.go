package mysql

import (
	"database/sql"
	"fmt"
)

const (
	licenseColumns = "code, group_id, role_id, duration_hours, created_at"
	grantColumns   = "member_id, group_id, role_id, expires_at"
)

func (s *MySql) prepareStmt(name, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.statements[name]; ok {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement [%s]: %w", name, err)
	}

	s.statements[name] = stmt
	return stmt, nil
}

func (s *MySql) closeStmt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, stmt := range s.statements {
		_ = stmt.Close()
		delete(s.statements, name)
	}
}

func (s *MySql) stmtInsertLicense() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`INSERT INTO %slicense (%s) VALUES (?, ?, ?, ?, ?)`,
		s.prefix, licenseColumns,
	)
	return s.prepareStmt("insertLicense", query)
}

func (s *MySql) stmtSelectLicense() (*sql.Stmt, error) {
	query := fmt.Sprintf(`SELECT %s FROM %slicense WHERE code = ?`, licenseColumns, s.prefix)
	return s.prepareStmt("selectLicense", query)
}

func (s *MySql) stmtDeleteLicense() (*sql.Stmt, error) {
	query := fmt.Sprintf(`DELETE FROM %slicense WHERE code = ?`, s.prefix)
	return s.prepareStmt("deleteLicense", query)
}

func (s *MySql) stmtCountLicenses() (*sql.Stmt, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %slicense WHERE group_id = ?`, s.prefix)
	return s.prepareStmt("countLicenses", query)
}

func (s *MySql) stmtListLicenses() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %slicense 
                   WHERE group_id = ? AND role_id = ?
                   ORDER BY created_at, code
                   LIMIT ?`,
		licenseColumns, s.prefix,
	)
	return s.prepareStmt("listLicenses", query)
}

func (s *MySql) stmtRandomLicenses() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %slicense WHERE group_id = ? ORDER BY RAND() LIMIT ?`,
		licenseColumns, s.prefix,
	)
	return s.prepareStmt("randomLicenses", query)
}

func (s *MySql) stmtInsertGrant() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`INSERT INTO %slicensed_member (%s) VALUES (?, ?, ?, ?)`,
		s.prefix, grantColumns,
	)
	return s.prepareStmt("insertGrant", query)
}

func (s *MySql) stmtDeleteGrant() (*sql.Stmt, error) {
	query := fmt.Sprintf(`DELETE FROM %slicensed_member WHERE member_id = ? AND role_id = ?`, s.prefix)
	return s.prepareStmt("deleteGrant", query)
}

func (s *MySql) stmtGrantExpiration() (*sql.Stmt, error) {
	query := fmt.Sprintf(`SELECT expires_at FROM %slicensed_member WHERE member_id = ? AND role_id = ?`, s.prefix)
	return s.prepareStmt("grantExpiration", query)
}

func (s *MySql) stmtMemberGrants() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %slicensed_member 
                   WHERE group_id = ? AND member_id = ?
                   ORDER BY expires_at`,
		grantColumns, s.prefix,
	)
	return s.prepareStmt("memberGrants", query)
}

func (s *MySql) stmtSelectGroup() (*sql.Stmt, error) {
	query := fmt.Sprintf(
		`SELECT group_id, default_role_id, default_duration_hours, max_unused_licenses, joined_at
                   FROM %slicense_group WHERE group_id = ?`,
		s.prefix,
	)
	return s.prepareStmt("selectGroup", query)
}
