package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
//go:generate mockgen -destination=row_mock_test.go -package=$GOPACKAGE github.com/ClickHouse/clickhouse-go/v2/lib/driver Row

type (
	// Conn is the part of the clickhouse connection the store relies on.
	Conn interface {
		Exec(ctx context.Context, query string, args ...any) error
		QueryRow(ctx context.Context, query string, args ...any) driver.Row
		Close() error
	}

	// Metrics observes every store operation.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
