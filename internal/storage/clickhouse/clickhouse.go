// Package clickhouse mirrors subject snapshots into ClickHouse for analytics.
package clickhouse

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultNativePort  = "9000"
	defaultDialTimeout = 5 * time.Second
	defaultMaxOpenConn = 4
)

// Conn wraps clickhouse driver.Conn for dependency injection.
type Conn struct {
	driver.Conn
	database string
}

// ParseOptions parses a clickhouse:// DSN and fills in the defaults the
// snapshot sink relies on. Query parameters understood by clickhouse-go
// (dial_timeout, compress, ...) override the defaults.
func ParseOptions(dsn string) (*clickhouse.Options, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if len(opts.Addr) == 0 {
		return nil, fmt.Errorf("parse clickhouse dsn: no host")
	}
	for i, addr := range opts.Addr {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			opts.Addr[i] = net.JoinHostPort(addr, defaultNativePort)
		}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = defaultMaxOpenConn
	}
	if opts.Compression == nil {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	return opts, nil
}

// NewConn connects to the database named in the DSN.
func NewConn(ctx context.Context, dsn string) (*Conn, error) {
	opts, err := ParseOptions(dsn)
	if err != nil {
		return nil, err
	}
	return open(ctx, opts)
}

// NewConnWithDatabase connects using database instead of the one named in
// the DSN. An empty database connects to the server default.
func NewConnWithDatabase(ctx context.Context, dsn, database string) (*Conn, error) {
	opts, err := ParseOptions(dsn)
	if err != nil {
		return nil, err
	}
	opts.Auth.Database = database
	return open(ctx, opts)
}

func open(ctx context.Context, opts *clickhouse.Options) (*Conn, error) {
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %v: %w", opts.Addr, err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse %v: %w", opts.Addr, err)
	}
	return &Conn{Conn: conn, database: opts.Auth.Database}, nil
}

// Database returns the database the connection is bound to.
func (c *Conn) Database() string {
	return c.database
}
