package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

// MySQL server error numbers that mean the account may not do this.
var permissionErrors = map[uint16]bool{
	1044: true, // ER_DBACCESS_DENIED_ERROR
	1045: true, // ER_ACCESS_DENIED_ERROR
	1142: true, // ER_TABLEACCESS_DENIED_ERROR
	1227: true, // ER_SPECIFIC_ACCESS_DENIED_ERROR
}

// classify maps driver errors onto the domain sentinels the gateway falls back on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && permissionErrors[myErr.Number] {
		return fmt.Errorf("%w: %v", analysis.ErrPermissionDenied, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, gomysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
	}
	return err
}
