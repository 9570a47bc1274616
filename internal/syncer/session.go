// Package syncer publishes local artifacts to the remote store in four
// strictly ordered stages: Backup, Rebuild, Plan, Apply.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/remote"
)

// ErrPrecondition is returned when a stage runs out of order.
var ErrPrecondition = errors.New("sync stage precondition not met")

type stage int

const (
	stageStart stage = iota
	stageBackedUp
	stageRebuilt
	stagePlanned
	stageApplied
)

var stageNames = map[stage]string{
	stageStart:    "start",
	stageBackedUp: "backup",
	stageRebuilt:  "rebuild",
	stagePlanned:  "plan",
	stageApplied:  "apply",
}

// RebuildFunc regenerates local artifacts. It may copy unchanged chunks
// forward from the snapshot.
type RebuildFunc func(ctx context.Context, snap *Snapshot) error

// Config configures a sync session.
type Config struct {
	Remote     remote.Store     // Where artifacts are published
	Layout     dataset.Layout   // Local dataset
	Confirm    Confirmer        // Approves uploads (default prompts on stdin)
	MaxRetries int              // Retries per remote call, 0 disables (negative: 3)
	RetryWait  time.Duration    // Initial backoff interval (default 500ms)
	Now        func() time.Time // Clock for snapshot names
	Logger     zerolog.Logger   // Logger

	// AllowReslice lets Plan accept chunks whose published records changed,
	// which only a repair produces.
	AllowReslice bool
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Uploaded []string
	Bytes    int64
	Skipped  bool // nothing to upload
	Declined bool // confirmation refused
}

// Session runs one Backup, Rebuild, Plan, Apply sequence.
type Session struct {
	cfg   Config
	log   zerolog.Logger
	stage stage
	snap  *Snapshot
	plan  *Plan
}

// NewSession creates a session.
func NewSession(cfg Config) *Session {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "sync").Logger(),
	}
}

func (s *Session) require(want stage, name string) error {
	if s.stage != want {
		return fmt.Errorf("%w: %s needs %s to have run last, session is at %s",
			ErrPrecondition, name, stageNames[want], stageNames[s.stage])
	}
	return nil
}

func (s *Session) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryWait
	b.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, remote.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx))
}

// Snapshot returns the backup taken by this session.
func (s *Session) Snapshot() *Snapshot { return s.snap }

// LastPlan returns the plan computed by this session.
func (s *Session) LastPlan() *Plan { return s.plan }

// Backup copies every remote object into a new local snapshot. Any failure
// is fatal; a session without a backup cannot continue.
func (s *Session) Backup(ctx context.Context) (*Snapshot, error) {
	if err := s.require(stageStart, "backup"); err != nil {
		return nil, err
	}
	start := time.Now()

	var keys []string
	if err := s.retry(ctx, func() error {
		var err error
		keys, err = s.cfg.Remote.List(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", s.cfg.Remote.Location(), err)
	}

	w, err := NewSnapshotWriter(s.cfg.Layout, s.cfg.Now(), "")
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	var total int64
	for _, key := range keys {
		var data []byte
		if err := s.retry(ctx, func() error {
			var err error
			data, err = s.cfg.Remote.Get(ctx, key)
			return err
		}); err != nil {
			return nil, fmt.Errorf("backup: get %s: %w", key, err)
		}
		if err := w.Add(key, data); err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		total += int64(len(data))
	}
	snap, err := w.Close()
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}

	s.snap = snap
	s.stage = stageBackedUp
	s.log.Info().
		Str("remote", s.cfg.Remote.Location()).
		Str("snapshot", snap.Dir).
		Int("objects", len(keys)).
		Int64("bytes", total).
		Dur("elapsed", time.Since(start)).
		Msg("backup complete")
	return snap, nil
}

// Rebuild runs fn against the snapshot taken by Backup.
func (s *Session) Rebuild(ctx context.Context, fn RebuildFunc) error {
	if err := s.require(stageBackedUp, "rebuild"); err != nil {
		return err
	}
	if err := fn(ctx, s.snap); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	s.stage = stageRebuilt
	return nil
}

// Plan diffs local artifacts against the snapshot.
func (s *Session) Plan(ctx context.Context) (*Plan, error) {
	if err := s.require(stageRebuilt, "plan"); err != nil {
		return nil, err
	}
	plan, err := Diff(s.cfg.Layout.ArtifactsDir(), s.snap)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if s.cfg.AllowReslice {
		s.log.Warn().Msg("reslice allowed, published chunks may be rewritten")
	} else if err := checkPublishedChunks(s.cfg.Layout.ArtifactsDir(), s.snap, plan, s.log); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	s.plan = plan
	s.stage = stagePlanned
	s.log.Info().
		Int("new", plan.Count(New)).
		Int("modified", plan.Count(Modified)).
		Int("unchanged", plan.Count(Unchanged)).
		Int("remote_only", plan.Count(RemoteOnly)).
		Int64("upload_bytes", plan.UploadBytes()).
		Msg("plan complete")
	return plan, nil
}

// Apply uploads the new and modified artifacts after confirmation. An empty
// plan is a no-op that never asks.
func (s *Session) Apply(ctx context.Context) (ApplyResult, error) {
	var res ApplyResult
	if err := s.require(stagePlanned, "apply"); err != nil {
		return res, err
	}
	uploads := s.plan.Uploads()
	if len(uploads) == 0 {
		s.log.Info().Msg("nothing to upload")
		s.stage = stageApplied
		res.Skipped = true
		return res, nil
	}

	confirm := s.cfg.Confirm
	if confirm == nil {
		confirm = Prompt{In: os.Stdin, Out: os.Stdout}
	}
	ok, err := confirm.Confirm(s.plan, s.cfg.Remote.Location())
	if err != nil {
		return res, fmt.Errorf("apply: confirm: %w", err)
	}
	if !ok {
		s.log.Warn().Int("artifacts", len(uploads)).Msg("upload declined")
		res.Declined = true
		return res, nil
	}

	for _, c := range uploads {
		data, err := os.ReadFile(filepath.Join(s.cfg.Layout.ArtifactsDir(), c.Name))
		if err != nil {
			return res, fmt.Errorf("apply: %w", err)
		}
		if err := s.retry(ctx, func() error {
			return s.cfg.Remote.Put(ctx, c.Name, data)
		}); err != nil {
			return res, fmt.Errorf("apply: upload %s: %w", c.Name, err)
		}
		res.Uploaded = append(res.Uploaded, c.Name)
		res.Bytes += int64(len(data))
		s.log.Debug().Str("artifact", c.Name).Str("kind", c.Kind.String()).Msg("uploaded")
	}
	s.stage = stageApplied
	s.log.Info().Int("artifacts", len(res.Uploaded)).Int64("bytes", res.Bytes).Msg("upload complete")
	return res, nil
}
