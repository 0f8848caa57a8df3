package ygggo_dbconn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

var (
	errConnectRefused = errors.New("connection refused")
	errServerGone     = errors.New("server has gone away")
)

// fakeResult is the canned outcome of one query text.
type fakeResult struct {
	cols []string
	rows [][]any
	err  error
}

// fakeDriver hands out fakeConns and checks that no two driver calls ever
// overlap.
type fakeDriver struct {
	mu         sync.Mutex
	connectErr error

	// failFirst makes the first failFirst connects fail.
	failFirst   int
	waitTimeout any
	results     map[string]fakeResult
	conns       []*fakeConn
	addrs       []string
	users       []string
	passwords   []string

	// onNewConn, when set, configures each connection before it is returned.
	onNewConn func(*fakeConn)

	active  atomic.Int32
	overlap atomic.Bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		waitTimeout: int64(defaultServerTimeout),
		results:     make(map[string]fakeResult),
	}
}

func (d *fakeDriver) enter() {
	if d.active.Add(1) > 1 {
		d.overlap.Store(true)
	}
	runtime.Gosched()
}

func (d *fakeDriver) exit() { d.active.Add(-1) }

// setResult makes every connection answer query with rows.
func (d *fakeDriver) setResult(query string, cols []string, rows ...[]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[query] = fakeResult{cols: cols, rows: rows}
}

// setError makes every connection fail query with err.
func (d *fakeDriver) setError(query string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[query] = fakeResult{err: err}
}

func (d *fakeDriver) setConnectErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addrs)
}

func (d *fakeDriver) connections() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDriver) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDriver) Connect(_ context.Context, addr, user, password string) (Connection, error) {
	d.enter()
	defer d.exit()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, addr)
	d.users = append(d.users, user)
	d.passwords = append(d.passwords, password)
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	if len(d.addrs) <= d.failFirst {
		return nil, errConnectRefused
	}
	c := &fakeConn{
		driver: d,
		id:     len(d.conns) + 1,
		md: MetaData{
			ProductName:    "MariaDB",
			ProductVersion: "10.11.6-MariaDB",
			DriverName:     "fake",
			DriverVersion:  "1.0",
		},
	}
	c.valid.Store(true)
	if d.onNewConn != nil {
		d.onNewConn(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDriver) lookup(query string) (fakeResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if query == waitTimeoutQuery {
		if d.waitTimeout == nil {
			return fakeResult{err: errors.New("unknown system variable")}, true
		}
		return fakeResult{cols: []string{"@@wait_timeout"}, rows: [][]any{{d.waitTimeout}}}, true
	}
	r, ok := d.results[query]
	return r, ok
}

// fakeConn is one fake server connection.
type fakeConn struct {
	driver *fakeDriver
	id     int

	valid  atomic.Bool
	closed atomic.Bool

	mu           sync.Mutex
	reconnectErr error
	schemaErr    error
	schemas      []string
	reconnects   int
	md           MetaData
	mdErr        error
	queries      []string
	// onQuery runs inside ExecuteQuery before the result is produced.
	onQuery func(query string)
}

func (c *fakeConn) IsValid(context.Context) bool {
	c.driver.enter()
	defer c.driver.exit()
	return !c.closed.Load() && c.valid.Load()
}

func (c *fakeConn) Reconnect(context.Context) error {
	c.driver.enter()
	defer c.driver.exit()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	if c.reconnectErr != nil {
		return c.reconnectErr
	}
	c.valid.Store(true)
	return nil
}

func (c *fakeConn) SetSchema(_ context.Context, schema string) error {
	c.driver.enter()
	defer c.driver.exit()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = append(c.schemas, schema)
	return c.schemaErr
}

func (c *fakeConn) Schema(context.Context) (string, error) {
	c.driver.enter()
	defer c.driver.exit()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schemaErr != nil {
		return "", c.schemaErr
	}
	if len(c.schemas) == 0 {
		return "", nil
	}
	return c.schemas[len(c.schemas)-1], nil
}

func (c *fakeConn) MetaData(context.Context) (MetaData, error) {
	c.driver.enter()
	defer c.driver.exit()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.md, c.mdErr
}

func (c *fakeConn) CreateStatement(context.Context) (Statement, error) {
	c.driver.enter()
	defer c.driver.exit()
	if c.closed.Load() {
		return nil, errors.New("statement on closed connection")
	}
	return &fakeStatement{conn: c}, nil
}

func (c *fakeConn) Close() error {
	c.driver.enter()
	defer c.driver.exit()
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) setReconnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectErr = err
}

func (c *fakeConn) setOnQuery(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onQuery = fn
}

func (c *fakeConn) schemaCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.schemas...)
}

func (c *fakeConn) reconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *fakeConn) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

type fakeStatement struct {
	conn *fakeConn
}

func (s *fakeStatement) ExecuteQuery(_ context.Context, query string) (Rows, error) {
	c := s.conn
	c.driver.enter()
	defer c.driver.exit()

	c.mu.Lock()
	c.queries = append(c.queries, query)
	onQuery := c.onQuery
	c.mu.Unlock()
	if onQuery != nil {
		onQuery(query)
	}

	r, ok := c.driver.lookup(query)
	if !ok {
		// Statements without canned rows succeed with an empty result.
		return &fakeRows{}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{cols: r.cols, rows: r.rows, pos: -1}, nil
}

func (s *fakeStatement) Close() error { return nil }

type fakeRows struct {
	cols []string
	rows [][]any
	pos  int
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }

func (r *fakeRows) Next() bool {
	if r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return errors.New("scan: column count mismatch")
	}
	for i, v := range row {
		p, ok := dest[i].(*any)
		if !ok {
			return errors.New("scan: unsupported destination")
		}
		*p = v
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

// scheduledTask is one Schedule call seen by fakeScheduler.
type scheduledTask struct {
	name     string
	first    time.Time
	interval time.Duration
	fn       func(time.Time)
}

// fakeScheduler records registrations without running anything.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledTask
	cancelled []string
}

func (s *fakeScheduler) Schedule(name string, first time.Time, interval time.Duration, fn func(time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduledTask{name: name, first: first, interval: interval, fn: fn})
}

func (s *fakeScheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, name)
}

func (s *fakeScheduler) tasks() []scheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledTask(nil), s.scheduled...)
}

// logBuffer collects JSON log records.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records decodes every record logged so far.
func (b *logBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

// withMessage returns the records whose msg equals msg.
func (b *logBuffer) withMessage(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, rec := range b.records(t) {
		if rec[slog.MessageKey] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// atLevel returns the records logged at level.
func (b *logBuffer) atLevel(t *testing.T, level slog.Level) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, rec := range b.records(t) {
		if rec[slog.LevelKey] == level.String() {
			out = append(out, rec)
		}
	}
	return out
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv is a DB wired to fakes.
type testEnv struct {
	db       *DB
	driver   *fakeDriver
	sched    *fakeScheduler
	clock    *testclock.Clock
	logs     *logBuffer
	settings *viper.Viper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set(KeySQLHost, "db.internal")
	v.Set(KeySQLPort, 3307)
	v.Set(KeySQLLogin, "app")
	v.Set(KeySQLPassword, "secret")
	v.Set(KeySQLDatabase, "inventory")

	logger, logs := newTestLogger()
	env := &testEnv{
		driver:   newFakeDriver(),
		sched:    &fakeScheduler{},
		clock:    testclock.NewClock(testEpoch),
		logs:     logs,
		settings: v,
	}
	env.db = New(v, Options{
		Driver:    env.driver,
		Scheduler: env.sched,
		Clock:     env.clock,
		Logger:    logger,
	})
	t.Cleanup(func() { _ = env.db.Close() })
	return env
}
