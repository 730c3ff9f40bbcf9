// Package pgstore journals store records to Postgres. Writes are buffered and
// flushed as a batch of upserts, either when the buffer fills or when its
// oldest entry exceeds MaxAgeFlush.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/phuslu/log"
)

// DB is the subset of *pgxpool.Pool the journal needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	config *StoreConfig
	wlock  sync.Mutex
	wbuf   buffer
	fc     chan buffer
	done   chan struct{}
	stop   chan struct{}
	db     DB
	log    log.Logger
	table  string
	now    func() time.Time
	closed bool
}

type StoreConfig struct {
	BufSize      int
	TickerDur    time.Duration
	MaxAgeFlush  time.Duration
	// WriteTimeout bounds every batch sent to the database.
	WriteTimeout time.Duration
}

type buffer struct {
	seq uint64
	t1  time.Time
	t2  time.Time
	buf []record
}

func new_buffer(seq uint64, len int) buffer {
	return buffer{seq: seq, buf: make([]record, 0, len)}
}

type record struct {
	key  string
	doc  json.RawMessage
	srvt time.Time
}

// latest keeps only the last write of every key, in first-write order.
func (b buffer) latest() []record {
	idx := make(map[string]int, len(b.buf))
	out := make([]record, 0, len(b.buf))
	for _, r := range b.buf {
		if i, ok := idx[r.key]; ok {
			out[i] = r
			continue
		}
		idx[r.key] = len(out)
		out = append(out, r)
	}
	return out
}

func NewStore(db DB, table string, config *StoreConfig) *Store {
	o := &Store{}
	o.config = config
	if o.config.BufSize <= 0 {
		o.config.BufSize = 64
	}
	if o.config.TickerDur <= 0 {
		o.config.TickerDur = time.Second
	}
	if o.config.WriteTimeout <= 0 {
		o.config.WriteTimeout = 5 * time.Second
	}
	o.table = table
	o.db = db
	o.now = time.Now
	o.log = log.DefaultLogger
	o.log.Context = log.NewContext(nil).Str("module", "pgstore").Value()
	o.wbuf = new_buffer(0, o.config.BufSize)
	o.fc = make(chan buffer, 4)
	o.done = make(chan struct{})
	o.stop = make(chan struct{})
	return o
}

func (st *Store) ident() string {
	return pgx.Identifier{st.table}.Sanitize()
}

// Migrate creates the journal table if it does not exist.
func (st *Store) Migrate(ctx context.Context) error {
	_, err := st.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+st.ident()+` (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", st.table, err)
	}
	return nil
}

// Load reads every journaled record.
func (st *Store) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := st.db.Query(ctx, `SELECT id, doc FROM `+st.ident())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", st.table, err)
	}
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("load %s: %w", st.table, err)
		}
		out[id] = json.RawMessage(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", st.table, err)
	}
	return out, nil
}

func (st *Store) Run() {
	go st.timer_flusher()
	go st.handle()
}

func (st *Store) timer_flusher() {
	ticker := time.NewTicker(st.config.TickerDur)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case t := <-ticker.C:
			st.wlock.Lock()
			if !st.closed && len(st.wbuf.buf) != 0 && t.Sub(st.wbuf.t1) > st.config.MaxAgeFlush {
				st.flush()
			}
			st.wlock.Unlock()
		}
	}
}

// Record queues the document of key for the next flush.
func (st *Store) Record(key string, doc json.RawMessage) {
	rec := record{key: key, doc: doc, srvt: st.now().UTC()}
	st.wlock.Lock()
	defer st.wlock.Unlock()
	if st.closed {
		st.log.Warn().Str("key", key).Msg("record after close dropped")
		return
	}
	if len(st.wbuf.buf) == 0 {
		st.wbuf.t1 = rec.srvt
	}
	st.wbuf.buf = append(st.wbuf.buf, rec)
	if len(st.wbuf.buf) >= st.config.BufSize {
		st.flush()
	}
}

// flush hands the write buffer to the flusher task. wlock must be held.
// It never blocks: while the flusher is backed up the buffer is coalesced
// to the latest write per key and kept for the next attempt.
func (st *Store) flush() {
	st.wbuf.t2 = st.now().UTC()
	select {
	case st.fc <- st.wbuf:
		st.wbuf = new_buffer(st.wbuf.seq+1, st.config.BufSize)
	default:
		n := len(st.wbuf.buf)
		st.wbuf.buf = st.wbuf.latest()
		st.log.Warn().Uint64("seq", st.wbuf.seq).Int("length", n).Int("coalesced", len(st.wbuf.buf)).Msg("flusher busy, buffer coalesced")
	}
}

func (st *Store) handle() {
	defer close(st.done)
	st.log.Info().Msg("starting flusher task")
	for buf := range st.fc {
		st.log.Debug().Uint64("seq", buf.seq).Msg("flusher task signalled")
		ctx, cancel := context.WithTimeout(context.Background(), st.config.WriteTimeout)
		st.write(ctx, buf)
		cancel()
	}
	st.log.Info().Msg("flusher task stopped")
}

func (st *Store) write(ctx context.Context, buf buffer) {
	recs := buf.latest()
	if len(recs) == 0 {
		return
	}
	q := `INSERT INTO ` + st.ident() + ` (id, doc, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`
	b := &pgx.Batch{}
	for _, r := range recs {
		b.Queue(q, r.key, []byte(r.doc), r.srvt)
	}
	t1 := time.Now()
	br := st.db.SendBatch(ctx, b)
	var err error
	for range recs {
		if _, err = br.Exec(); err != nil {
			break
		}
	}
	if cerr := br.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		st.log.Error().Err(err).Uint64("seq", buf.seq).Int("length", len(recs)).Msg("flush error")
	} else {
		st.log.Debug().Str("action", "flush").Int("length", len(recs)).Dur("time_taken", time.Since(t1)).Msg("flush successfull")
	}
}

// Close hands what is buffered to the flusher task and waits for it to
// finish, giving up when ctx is done.
func (st *Store) Close(ctx context.Context) error {
	st.wlock.Lock()
	if st.closed {
		st.wlock.Unlock()
		return nil
	}
	st.closed = true
	close(st.stop)
	last := st.wbuf
	st.wbuf = new_buffer(last.seq+1, 0)
	st.wlock.Unlock()

	if len(last.buf) != 0 {
		last.t2 = st.now().UTC()
		select {
		case st.fc <- last:
		case <-ctx.Done():
			st.log.Error().Uint64("seq", last.seq).Int("length", len(last.buf)).Msg("close deadline passed, buffer dropped")
		}
	}
	// no other sender remains once closed is set
	close(st.fc)

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
