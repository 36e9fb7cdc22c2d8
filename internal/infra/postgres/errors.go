package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"

	"matchpoint/internal/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// pgCode extracts the SQLSTATE from either driver's error type.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return drvErr.Field('C')
	}
	return ""
}

// transient wraps connectivity failures with domain.ErrUnavailable so callers
// retry or queue them.
func transient(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	// too_many_connections, cannot_connect_now
	switch pgCode(err) {
	case "53300", "57P03":
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
