package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/database/storetest"
	"licensebot/internal/entitlement"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server when MYSQL_TEST_DSN is set, e.g.
// MYSQL_TEST_DSN='root:secret@tcp(127.0.0.1:3306)/licensebot_test?parseTime=true'
func TestMySQLStoreContract(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	n := 0
	storetest.Run(t, func(t *testing.T) entitlement.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n++
		s, err := Open(ctx, db, fmt.Sprintf("t%d_%d_", time.Now().Unix()%100000, n))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.dropTables(context.Background())
			s.closeStmt()
		})
		return s
	})
}

func TestExecError(t *testing.T) {
	dup := &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"}
	assert.ErrorIs(t, execError(dup), entity.ErrDuplicateKey)
	assert.ErrorIs(t, execError(fmt.Errorf("insert: %w", dup)), entity.ErrDuplicateKey)

	other := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}
	assert.False(t, errors.Is(execError(other), entity.ErrDuplicateKey))
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, int64(5), queryLimit(5))
	assert.Equal(t, int64(1<<63-1), queryLimit(0))
}
