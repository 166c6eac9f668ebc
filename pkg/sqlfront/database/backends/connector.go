package backends

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
)

// pragma is one statement run on every new connection. name is what error
// messages show, so the key itself never ends up in an error.
type pragma struct {
	name string
	stmt string
}

// connector opens driver connections and applies the per-connection pragmas.
// database/sql may open new connections at any time, and each one needs the
// key before it can read the file.
type connector struct {
	driver  driver.Driver
	dsn     string
	pragmas []pragma
}

var _ driver.Connector = (*connector)(nil)

func newConnector(driverName, dsn string, pragmas []pragma) (*connector, error) {
	drv, err := lookupDriver(driverName)
	if err != nil {
		return nil, err
	}
	return &connector{driver: drv, dsn: dsn, pragmas: pragmas}, nil
}

// lookupDriver resolves a registered driver by name. sql.Open does not
// connect, so the throwaway pool costs nothing.
func lookupDriver(name string) (driver.Driver, error) {
	db, err := sql.Open(name, "")
	if err != nil {
		return nil, fmt.Errorf("lookup sql driver %q: %w", name, err)
	}
	drv := db.Driver()
	_ = db.Close()
	return drv, nil
}

// Connect implements driver.Connector.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}

	for _, p := range c.pragmas {
		if err := execConn(ctx, conn, p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", p.name, err)
		}
	}

	return conn, nil
}

// Driver implements driver.Connector.
func (c *connector) Driver() driver.Driver {
	return c.driver
}

func execConn(ctx context.Context, conn driver.Conn, query string) error {
	if ex, ok := conn.(driver.ExecerContext); ok {
		_, err := ex.ExecContext(ctx, query, nil)
		if err != driver.ErrSkip {
			return err
		}
	}

	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(nil) //nolint:staticcheck // driver-level exec without context
	return err
}
