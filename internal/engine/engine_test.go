package engine

import (
	"context"
	"testing"
	"time"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/source"
	"github.com/denismitr/chmigrate/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayMock struct {
	ledger    migration.Migrations
	executed  []string
	failOn    map[string]error
	writeErr  error
	readErr   error
	lostRows  map[string]bool
	clock     time.Time
	mutations int
}

func newGatewayMock() *gatewayMock {
	return &gatewayMock{
		failOn:   make(map[string]error),
		lostRows: make(map[string]bool),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *gatewayMock) Exec(_ context.Context, statement string) error {
	if err, ok := g.failOn[statement]; ok {
		return err
	}

	g.mutations++
	g.executed = append(g.executed, statement)
	return nil
}

func (g *gatewayMock) ReadApplied(context.Context) ([]string, error) {
	if g.readErr != nil {
		return nil, g.readErr
	}

	return g.ledger.Names(), nil
}

func (g *gatewayMock) ReadForRollback(_ context.Context, count int) (migration.Migrations, error) {
	if err := database.ValidateRollbackCount(count); err != nil {
		return nil, err
	}

	var result migration.Migrations
	for i := len(g.ledger) - 1; i >= 0 && len(result) < count; i-- {
		result = append(result, g.ledger[i])
	}

	return result, nil
}

func (g *gatewayMock) WriteApplied(_ context.Context, m *migration.Migration) error {
	if g.writeErr != nil {
		return g.writeErr
	}

	for _, existing := range g.ledger {
		if existing.Name == m.Name {
			return errors.Errorf("duplicate ledger row %s", m.Name)
		}
	}

	g.mutations++
	g.clock = g.clock.Add(time.Second)
	row := *m
	row.AppliedAt = g.clock
	g.ledger = append(g.ledger, &row)
	return nil
}

func (g *gatewayMock) RemoveApplied(_ context.Context, name string) (bool, error) {
	if g.lostRows[name] {
		return false, nil
	}

	for i := range g.ledger {
		if g.ledger[i].Name == name {
			g.mutations++
			g.ledger = append(g.ledger[:i], g.ledger[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

type snapshotterMock struct {
	calls int
	err   error
}

func (s *snapshotterMock) Write(context.Context) error {
	s.calls++
	return s.err
}

func newSource(t *testing.T, factories ...migration.Factory) *source.InMemorySource {
	t.Helper()
	s, err := source.NewInMemorySource(factories...)
	require.NoError(t, err)
	return s
}

func threeTables() []migration.Factory {
	return []migration.Factory{
		migration.New("20240301000000_baz.yml", "CREATE TABLE baz (id UInt64) ENGINE = Memory;", "DROP TABLE baz;"),
		migration.New("20240101000000_foo.yml", "CREATE TABLE foo (id UInt64) ENGINE = Memory;", "DROP TABLE foo;"),
		migration.New("20240201000000_bar.yml", "CREATE TABLE bar (id UInt64) ENGINE = Memory;\nINSERT INTO bar VALUES (1);", "DROP TABLE bar;"),
	}
}

func TestEngine_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("pending migrations are applied in name order", func(t *testing.T) {
		g := newGatewayMock()
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		report, err := e.Apply(ctx, 0)
		require.NoError(t, err)

		assert.Equal(t, []string{"20240101000000_foo.yml", "20240201000000_bar.yml", "20240301000000_baz.yml"}, report.Applied)
		assert.Equal(t, report.Applied, g.ledger.Names())
		assert.Equal(t, []string{
			"CREATE TABLE foo (id UInt64) ENGINE = Memory",
			"CREATE TABLE bar (id UInt64) ENGINE = Memory",
			"INSERT INTO bar VALUES (1)",
			"CREATE TABLE baz (id UInt64) ENGINE = Memory",
		}, g.executed)
		assert.Equal(t, 1, snap.calls)
	})

	t.Run("applying twice is a no-op that still writes the snapshot", func(t *testing.T) {
		g := newGatewayMock()
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		_, err := e.Apply(ctx, 0)
		require.NoError(t, err)
		mutations := g.mutations

		report, err := e.Apply(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, report.Applied)
		assert.Equal(t, mutations, g.mutations)
		assert.Equal(t, 2, snap.calls)
	})

	t.Run("limit applies the first pending migrations only", func(t *testing.T) {
		for limit, expected := range map[int][]string{
			1: {"20240101000000_foo.yml"},
			2: {"20240101000000_foo.yml", "20240201000000_bar.yml"},
			7: {"20240101000000_foo.yml", "20240201000000_bar.yml", "20240301000000_baz.yml"},
		} {
			g := newGatewayMock()
			e := New(newSource(t, threeTables()...), g, &snapshotterMock{}, nil)

			report, err := e.Apply(ctx, limit)
			require.NoError(t, err)
			assert.Equal(t, expected, report.Applied)
			assert.Equal(t, expected, g.ledger.Names())

			status, err := e.Status(ctx)
			require.NoError(t, err)
			assert.Len(t, status.Pending, 3-len(expected))
		}
	})

	t.Run("negative limit is rejected without touching the database", func(t *testing.T) {
		g := newGatewayMock()
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		_, err := e.Apply(ctx, -1)
		assert.True(t, errors.Is(err, database.ErrInvalidArgument))
		assert.Zero(t, g.mutations)
		assert.Zero(t, snap.calls)
	})

	t.Run("empty migrations are skipped and never recorded", func(t *testing.T) {
		g := newGatewayMock()
		e := New(newSource(t,
			migration.New("20240101000000_a.yml", "CREATE TABLE a (id Int8) ENGINE = Memory", "DROP TABLE a"),
			migration.New("20240102000000_placeholder.yml", "  \n\t ", "DROP TABLE nothing"),
			migration.New("20240103000000_c.yml", "CREATE TABLE c (id Int8) ENGINE = Memory", "DROP TABLE c"),
		), g, &snapshotterMock{}, nil)

		for i := 0; i < 3; i++ {
			report, err := e.Apply(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"20240102000000_placeholder.yml"}, report.Skipped)
		}

		assert.Equal(t, []string{"20240101000000_a.yml", "20240103000000_c.yml"}, g.ledger.Names())

		status, err := e.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240102000000_placeholder.yml"}, status.Pending)
	})

	t.Run("failing statement stops the batch and keeps earlier work", func(t *testing.T) {
		g := newGatewayMock()
		cause := errors.New("Code: 57. DB::Exception: Table default.bar already exists")
		g.failOn["INSERT INTO bar VALUES (1)"] = cause
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		report, err := e.Apply(ctx, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, database.ErrStatementExecution))
		assert.True(t, errors.Is(err, cause))

		var stmtErr *database.StatementError
		require.True(t, errors.As(err, &stmtErr))
		assert.Equal(t, "20240201000000_bar.yml", stmtErr.Migration)
		assert.Equal(t, "INSERT INTO bar VALUES (1)", stmtErr.Statement)

		assert.Equal(t, []string{"20240101000000_foo.yml"}, report.Applied)
		assert.Equal(t, []string{"20240101000000_foo.yml"}, g.ledger.Names())
		assert.Equal(t, []string{
			"CREATE TABLE foo (id UInt64) ENGINE = Memory",
			"CREATE TABLE bar (id UInt64) ENGINE = Memory",
		}, g.executed, "statements that ran stay in effect, later migrations are not attempted")
		assert.Equal(t, 1, snap.calls, "snapshot reflects the partial state")

		delete(g.failOn, "INSERT INTO bar VALUES (1)")
		report, err = e.Apply(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240201000000_bar.yml", "20240301000000_baz.yml"}, report.Applied)
	})

	t.Run("broken definition stops the batch", func(t *testing.T) {
		g := newGatewayMock()
		snap := &snapshotterMock{}
		e := New(&brokenSelector{
			Selector: newSource(t, threeTables()...),
			broken:   "20240201000000_bar.yml",
		}, g, snap, nil)

		report, err := e.Apply(ctx, 0)
		assert.True(t, errors.Is(err, database.ErrDefinitionLoad))
		assert.Equal(t, []string{"20240101000000_foo.yml"}, report.Applied)
		assert.Equal(t, []string{"20240101000000_foo.yml"}, g.ledger.Names())
		assert.Equal(t, 1, snap.calls)
	})

	t.Run("ledger write failure leaves the migration pending", func(t *testing.T) {
		g := newGatewayMock()
		g.writeErr = errors.New("Code: 241. DB::Exception: Memory limit exceeded")
		e := New(newSource(t, threeTables()...), g, &snapshotterMock{}, nil)

		report, err := e.Apply(ctx, 0)
		assert.Error(t, err)
		assert.Empty(t, report.Applied)
		assert.Len(t, g.executed, 1)
	})

	t.Run("snapshot failure is reported after the batch error", func(t *testing.T) {
		g := newGatewayMock()
		g.failOn["CREATE TABLE foo (id UInt64) ENGINE = Memory"] = errors.New("syntax error")
		snapshotErr := errors.New("could not list all tables")
		e := New(newSource(t, threeTables()...), g, &snapshotterMock{err: snapshotErr}, nil)

		_, err := e.Apply(ctx, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, database.ErrStatementExecution))
		assert.True(t, errors.Is(err, snapshotErr))
	})

	t.Run("snapshot failure alone fails a successful batch", func(t *testing.T) {
		g := newGatewayMock()
		snapshotErr := errors.New("could not list all tables")
		e := New(newSource(t, threeTables()...), g, &snapshotterMock{err: snapshotErr}, nil)

		report, err := e.Apply(ctx, 0)
		assert.Equal(t, snapshotErr, err)
		assert.Len(t, report.Applied, 3)
	})

	t.Run("ledger read failure aborts before anything runs", func(t *testing.T) {
		g := newGatewayMock()
		g.readErr = database.Unavailable(errors.New("connection refused"))
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		_, err := e.Apply(ctx, 0)
		assert.True(t, errors.Is(err, database.ErrServerUnavailable))
		assert.Zero(t, g.mutations)
		assert.Zero(t, snap.calls)
	})
}

func TestEngine_Rollback(t *testing.T) {
	ctx := context.Background()

	applied := func(t *testing.T) (*Engine, *gatewayMock, *snapshotterMock) {
		g := newGatewayMock()
		snap := &snapshotterMock{}
		e := New(newSource(t, threeTables()...), g, snap, nil)

		_, err := e.Apply(ctx, 0)
		require.NoError(t, err)
		g.executed = nil
		g.mutations = 0
		snap.calls = 0

		return e, g, snap
	}

	t.Run("most recent migrations are rolled back first", func(t *testing.T) {
		e, g, snap := applied(t)

		report, err := e.Rollback(ctx, 2)
		require.NoError(t, err)

		assert.Equal(t, []string{"20240301000000_baz.yml", "20240201000000_bar.yml"}, report.RolledBack)
		assert.Equal(t, []string{"DROP TABLE baz", "DROP TABLE bar"}, g.executed)
		assert.Equal(t, []string{"20240101000000_foo.yml"}, g.ledger.Names())
		assert.Equal(t, 1, snap.calls)
	})

	t.Run("rolling back more than was applied reverts everything", func(t *testing.T) {
		e, g, _ := applied(t)

		report, err := e.Rollback(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, report.RolledBack, 3)
		assert.Empty(t, g.ledger)

		report, err = e.Rollback(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, report.RolledBack)
	})

	t.Run("non positive count is rejected without touching the database", func(t *testing.T) {
		for _, count := range []int{0, -1} {
			e, g, snap := applied(t)

			_, err := e.Rollback(ctx, count)
			assert.True(t, errors.Is(err, database.ErrInvalidArgument))
			assert.Zero(t, g.mutations)
			assert.Zero(t, snap.calls)
			assert.Len(t, g.ledger, 3)
		}
	})

	t.Run("failing rollback keeps its ledger row and stops the batch", func(t *testing.T) {
		e, g, snap := applied(t)
		g.failOn["DROP TABLE bar"] = errors.New("Code: 60. DB::Exception: Table default.bar doesn't exist")

		report, err := e.Rollback(ctx, 3)
		assert.True(t, errors.Is(err, database.ErrStatementExecution))
		assert.Equal(t, []string{"20240301000000_baz.yml"}, report.RolledBack)
		assert.Equal(t, []string{"20240101000000_foo.yml", "20240201000000_bar.yml"}, g.ledger.Names())
		assert.Equal(t, []string{"DROP TABLE baz"}, g.executed)
		assert.Equal(t, 1, snap.calls)
	})

	t.Run("vanished ledger row is not an error", func(t *testing.T) {
		e, g, _ := applied(t)
		g.lostRows["20240301000000_baz.yml"] = true

		report, err := e.Rollback(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240301000000_baz.yml"}, report.RolledBack)
	})

	t.Run("apply then rollback round trip", func(t *testing.T) {
		g := newGatewayMock()
		e := New(newSource(t,
			migration.New("20240101_a.yml", "CREATE TABLE t1 (id UInt64) ENGINE = Memory", "DROP TABLE t1"),
		), g, &snapshotterMock{}, nil)

		report, err := e.Apply(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240101_a.yml"}, report.Applied)

		report, err = e.Apply(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, report.Applied)

		report, err = e.Rollback(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240101_a.yml"}, report.RolledBack)
		assert.Empty(t, g.ledger)
		assert.Equal(t, []string{"CREATE TABLE t1 (id UInt64) ENGINE = Memory", "DROP TABLE t1"}, g.executed)
	})
}

type brokenSelector struct {
	source.Selector
	broken string
}

func (s *brokenSelector) Load(ctx context.Context, name string) (*migration.Migration, error) {
	if name == s.broken {
		return nil, &database.DefinitionError{Name: name, Err: errors.New("yaml: line 1: did not find expected node content")}
	}

	return s.Selector.Load(ctx, name)
}
