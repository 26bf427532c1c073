package statedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/logging"
)

var instLog = logging.ForComponent(logging.CompInstance)

// ErrAlreadyRunning is returned by Acquire when another live process owns
// the primary slot.
var ErrAlreadyRunning = errors.New("another snapdeck instance is already running")

// Metadata keys describing the current primary. A release clears
// metaPrimaryPID, so a value left behind means the last primary died
// holding the slot.
const (
	metaPrimaryPID     = "primary_pid"
	metaPrimaryStarted = "primary_started"
)

// Default lease timings.
const (
	DefaultHeartbeat  = 10 * time.Second
	DefaultStaleAfter = 30 * time.Second
)

// LeaseOptions tunes Acquire.
type LeaseOptions struct {
	// Heartbeat is how often the lease refreshes its row.
	Heartbeat time.Duration
	// StaleAfter is how old a heartbeat may get before its owner is
	// considered dead and the slot can be taken over.
	StaleAfter time.Duration
}

func (o LeaseOptions) withDefaults() LeaseOptions {
	if o.Heartbeat <= 0 {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.StaleAfter <= o.Heartbeat {
		o.StaleAfter = 3 * o.Heartbeat
	}
	return o
}

// Lease is held by the single running agent. It keeps the process's
// heartbeat fresh until Release.
type Lease struct {
	db     *StateDB
	opts   LeaseOptions
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// predecessor is the pid of a primary that never released, if any.
	predecessor string
}

// Acquire opens the database at dbPath, registers this process and tries to
// become primary. On ErrAlreadyRunning the registration is removed again and
// the database closed.
func Acquire(ctx context.Context, dbPath string, opts LeaseOptions) (*Lease, error) {
	opts = opts.withDefaults()

	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return acquireWith(ctx, db, opts)
}

func acquireWith(ctx context.Context, db *StateDB, opts LeaseOptions) (*Lease, error) {
	if err := db.CleanDeadInstances(opts.StaleAfter); err != nil {
		instLog.Warn("clean_dead_instances_failed", slog.String("error", err.Error()))
	}
	if err := db.RegisterInstance(false); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: register: %w", err)
	}

	primary, err := db.ElectPrimary(opts.StaleAfter)
	if err != nil {
		_ = db.UnregisterInstance()
		db.Close()
		return nil, err
	}
	if !primary {
		_ = db.UnregisterInstance()
		db.Close()
		return nil, ErrAlreadyRunning
	}

	hbCtx, cancel := context.WithCancel(ctx)
	l := &Lease{db: db, opts: opts, cancel: cancel}
	l.recordStart()
	l.wg.Add(1)
	go l.beat(hbCtx)

	instLog.Info("instance_acquired",
		slog.Int("pid", db.PID()),
		slog.Duration("heartbeat", opts.Heartbeat),
		slog.Duration("stale_after", opts.StaleAfter))
	return l, nil
}

// recordStart notes this process as primary, reporting a predecessor that
// exited without Release (a crash or kill).
func (l *Lease) recordStart() {
	self := strconv.Itoa(l.db.PID())
	prev, err := l.db.GetMeta(metaPrimaryPID)
	if err != nil {
		instLog.Warn("primary_meta_unreadable", slog.String("error", err.Error()))
	}
	if prev != "" && prev != self {
		l.predecessor = prev
		attrs := []any{slog.String("previous_pid", prev)}
		if started, err := l.db.GetMeta(metaPrimaryStarted); err == nil && started != "" {
			if sec, err := strconv.ParseInt(started, 10, 64); err == nil {
				attrs = append(attrs, slog.Time("previous_started", time.Unix(sec, 0)))
			}
		}
		instLog.Warn("previous_instance_not_released", attrs...)
	}

	if err := errors.Join(
		l.db.SetMeta(metaPrimaryPID, self),
		l.db.SetMeta(metaPrimaryStarted, strconv.FormatInt(time.Now().Unix(), 10)),
	); err != nil {
		instLog.Warn("primary_meta_write_failed", slog.String("error", err.Error()))
	}
}

func (l *Lease) beat(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.db.Heartbeat(); err != nil {
				instLog.Warn("heartbeat_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Release stops the heartbeat, gives up the primary slot and closes the
// database. Safe to call more than once.
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
		err = errors.Join(
			l.db.SetMeta(metaPrimaryPID, ""),
			l.db.ResignPrimary(),
			l.db.UnregisterInstance(),
			l.db.Close(),
		)
		instLog.Info("instance_released", slog.Int("pid", l.db.PID()))
	})
	return err
}
