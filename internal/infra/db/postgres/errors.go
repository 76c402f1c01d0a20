package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

var permissionErrors = map[pq.ErrorCode]bool{
	"42501": true, // insufficient_privilege
	"28000": true, // invalid_authorization_specification
	"28P01": true, // invalid_password
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if permissionErrors[pqErr.Code] {
			return fmt.Errorf("%w: %v", analysis.ErrPermissionDenied, err)
		}
		// class 08: connection exception, 57P: operator intervention
		if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57" {
			return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
	}
	return err
}
