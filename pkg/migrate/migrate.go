// Package migrate moves data from the legacy schema (v2, compressed scalar
// blobs) to the current layout (v3, hashes plus rebuilt indexes) and
// validates the result. It runs once at process startup, before traffic is
// accepted, as a single sequential batch.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"aphorist/pkg/commands"
	"aphorist/pkg/commands/treestore"
	"aphorist/pkg/keys"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
	"aphorist/pkg/telemetry"
)

// SchemaVersion is the layout this build writes.
const SchemaVersion = "3"

// LegacyVersion is the only source layout this migrator understands.
const LegacyVersion = "2"

const (
	versionKey = "system:schemaVersion"
	// notifiedKeyPrefix marks one-shot "users emailed about version N"
	// state; reset only when a new transition is initiated.
	notifiedKeyPrefix = "system:usersNotified:"
)

// Status is the terminal state of a migration run.
type Status string

const (
	StatusNotNeeded        Status = "not_needed"
	StatusCompleted        Status = "completed"
	StatusFailedValidation Status = "failed_validation"
	StatusFatalError       Status = "fatal_error"
)

// Result summarizes one run.
type Result struct {
	Status           Status
	MigratedPosts    int
	MigratedReplies  int
	Skipped          int
	ValidationErrors []ValidationError
}

// transitionMarker renders the retryable "in transition" marker value.
func transitionMarker() string { return LegacyVersion + "->" + SchemaVersion }

// Migrator drives the v2 -> v3 transition. It writes through the command
// interface like any consumer, plus the raw-path escape hatch for reading
// and deleting the legacy subtree.
type Migrator struct {
	store commands.Store
	raw   commands.RawPathAccessor

	// DeadLetterPath is where validation failures are persisted; see
	// deadletter.go. Required.
	DeadLetterPath string
}

// New builds a Migrator. The backend (possibly behind decorators exposing
// Unwrap) must implement RawPathAccessor; the native backend does not, and
// migration refuses to run against it.
func New(store commands.Store, deadLetterPath string) (*Migrator, error) {
	raw, ok := rawAccessor(store)
	if !ok {
		return nil, fmt.Errorf("backend does not expose raw path access; migration requires the tree-emulated backend")
	}
	return &Migrator{store: store, raw: raw, DeadLetterPath: deadLetterPath}, nil
}

func rawAccessor(s commands.Store) (commands.RawPathAccessor, bool) {
	for {
		if raw, ok := s.(commands.RawPathAccessor); ok {
			return raw, true
		}
		u, ok := s.(interface{ Unwrap() commands.Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
}

// Run inspects the schema-version marker and performs the transition when
// needed. States: NotNeeded -> Migrating -> Validating -> {Completed |
// FailedValidation | FatalError}.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	stored, found, err := m.store.Get(ctx, versionKey)
	if err != nil {
		return Result{Status: StatusFatalError}, err
	}

	resuming := false
	switch {
	case found && stored == SchemaVersion:
		logger.Info("migrate_not_needed", "version", stored)
		return Result{Status: StatusNotNeeded}, nil
	case found && stored == transitionMarker():
		// A previous run died mid-transition; resume instead of re-running
		// blindly. Per-entity work is idempotent.
		logger.Warn("migrate_resuming", "marker", stored)
		resuming = true
	case found && stored == LegacyVersion:
	case !found:
		// Fresh store, unless legacy records exist from a pre-marker era.
		legacy, err := m.raw.ListPaths(ctx, treestore.ScalarPathPrefix("legacy:"))
		if err != nil {
			return Result{Status: StatusFatalError}, err
		}
		if len(legacy) == 0 {
			if err := m.store.Set(ctx, versionKey, SchemaVersion); err != nil {
				return Result{Status: StatusFatalError}, err
			}
			logger.Info("migrate_fresh_store", "version", SchemaVersion)
			return Result{Status: StatusNotNeeded}, nil
		}
	default:
		return Result{Status: StatusFatalError},
			fmt.Errorf("unsupported schema version %q (this build migrates %s -> %s)", stored, LegacyVersion, SchemaVersion)
	}

	if !resuming {
		// Initiating a new transition clears one-shot state for the target
		// version; a resume must never reset it mid-migration.
		if _, err := m.store.Del(ctx, notifiedKeyPrefix+SchemaVersion); err != nil {
			return Result{Status: StatusFatalError}, err
		}
		if err := m.store.Set(ctx, versionKey, transitionMarker()); err != nil {
			return Result{Status: StatusFatalError}, err
		}
	}

	res := Result{}
	logger.Info("migrate_start", "from", LegacyVersion, "to", SchemaVersion, "resuming", resuming)

	if err := m.migrateEntities(ctx, &res); err != nil {
		res.Status = StatusFatalError
		return res, err
	}
	if err := m.rebuildIndexes(ctx); err != nil {
		res.Status = StatusFatalError
		return res, err
	}

	res.ValidationErrors = m.validate(ctx)
	telemetry.MigrationValidationErrors.Set(float64(len(res.ValidationErrors)))

	// The dead-letter file is written on every run, empty included, so a
	// stale file from a previous failing run cannot linger.
	if err := WriteDeadLetter(m.DeadLetterPath, res.ValidationErrors); err != nil {
		res.Status = StatusFatalError
		return res, err
	}

	if len(res.ValidationErrors) > 0 {
		// Leave the marker in transition form; the next start resumes.
		res.Status = StatusFailedValidation
		logger.Error("migrate_validation_failed", "errors", len(res.ValidationErrors), "dead_letter", m.DeadLetterPath)
		return res, fmt.Errorf("migration validation failed with %d errors (see %s)", len(res.ValidationErrors), m.DeadLetterPath)
	}

	if err := m.store.Set(ctx, versionKey, SchemaVersion); err != nil {
		res.Status = StatusFatalError
		return res, err
	}
	res.Status = StatusCompleted
	logger.Info("migrate_completed", "posts", res.MigratedPosts, "replies", res.MigratedReplies, "skipped", res.Skipped)
	return res, nil
}

// migrateEntities walks the legacy subtrees, transforms each record into
// the v3 shape and deletes the old node. Per-entity failures are logged and
// counted, never thrown; a batch with candidates but zero successes is
// escalated as fatal.
func (m *Migrator) migrateEntities(ctx context.Context, res *Result) error {
	candidates := 0

	posts, err := m.raw.ListPaths(ctx, treestore.ScalarPathPrefix("legacy:post:"))
	if err != nil {
		return err
	}
	candidates += len(posts)
	for _, rp := range posts {
		if m.migratePost(ctx, rp) {
			res.MigratedPosts++
			telemetry.MigrationEntities.WithLabelValues("post", "migrated").Inc()
		} else {
			res.Skipped++
			telemetry.MigrationEntities.WithLabelValues("post", "skipped").Inc()
		}
	}

	replies, err := m.raw.ListPaths(ctx, treestore.ScalarPathPrefix("legacy:reply:"))
	if err != nil {
		return err
	}
	candidates += len(replies)
	for _, rp := range replies {
		if m.migrateReply(ctx, rp) {
			res.MigratedReplies++
			telemetry.MigrationEntities.WithLabelValues("reply", "migrated").Inc()
		} else {
			res.Skipped++
			telemetry.MigrationEntities.WithLabelValues("reply", "skipped").Inc()
		}
	}

	if candidates > 0 && res.MigratedPosts+res.MigratedReplies == 0 {
		return fmt.Errorf("migration made no progress: %d candidates, 0 migrated", candidates)
	}
	return nil
}

func (m *Migrator) migratePost(ctx context.Context, rp commands.RawPath) bool {
	raw, err := DecodeLegacyBlob(rp.Value)
	if err != nil {
		logger.Error("migrate_post_decode_failed", "path", rp.Path, "error", err)
		return false
	}
	var lp legacyPost
	if err := json.Unmarshal(raw, &lp); err != nil {
		logger.Error("migrate_post_parse_failed", "path", rp.Path, "error", err)
		return false
	}
	if lp.ID == "" {
		// Identity is never invented.
		logger.Error("migrate_post_missing_id", "path", rp.Path)
		return false
	}
	author := lp.author()
	if author == "" {
		author = "unknown"
	}
	key := "post:" + lp.ID
	fields := map[string]string{
		"content":   lp.content(),
		"authorId":  author,
		"createdAt": strconv.FormatInt(lp.createdAt(), 10),
	}
	for f, v := range fields {
		if err := m.store.HSet(ctx, key, f, v); err != nil {
			logger.Error("migrate_post_write_failed", "key", key, "field", f, "error", err)
			return false
		}
	}
	if err := m.raw.DeletePath(ctx, rp.Path); err != nil {
		logger.Error("migrate_post_delete_old_failed", "path", rp.Path, "error", err)
		return false
	}
	return true
}

func (m *Migrator) migrateReply(ctx context.Context, rp commands.RawPath) bool {
	raw, err := DecodeLegacyBlob(rp.Value)
	if err != nil {
		logger.Error("migrate_reply_decode_failed", "path", rp.Path, "error", err)
		return false
	}
	var lr legacyReply
	if err := json.Unmarshal(raw, &lr); err != nil {
		logger.Error("migrate_reply_parse_failed", "path", rp.Path, "error", err)
		return false
	}
	if lr.ID == "" {
		logger.Error("migrate_reply_missing_id", "path", rp.Path)
		return false
	}
	author := lr.author()
	if author == "" {
		author = "unknown"
	}
	key := "reply:" + lr.ID
	fields := map[string]string{
		"text":       lr.Text,
		"parentId":   lr.ParentID,
		"rootPostId": lr.RootPostID,
		"authorId":   author,
		"createdAt":  strconv.FormatInt(lr.createdAt(), 10),
	}
	if len(lr.Quote) > 0 {
		fields["quote"] = string(lr.Quote)
	}
	for f, v := range fields {
		if err := m.store.HSet(ctx, key, f, v); err != nil {
			logger.Error("migrate_reply_write_failed", "key", key, "field", f, "error", err)
			return false
		}
	}
	if err := m.raw.DeletePath(ctx, rp.Path); err != nil {
		logger.Error("migrate_reply_delete_old_failed", "path", rp.Path, "error", err)
		return false
	}
	return true
}

// rebuildIndexes derives every index from the migrated entities instead of
// copying the old ones, so index corruption in the legacy schema cannot
// propagate.
func (m *Migrator) rebuildIndexes(ctx context.Context) error {
	// Drop current derived state first.
	stale := []string{"feedItems", "replyFeedItems", "feedStats"}
	for _, pattern := range []string{"userPosts:*", "userReplies:*", "repliesByParentQuote:*", "*:quoteCounts"} {
		ks, err := m.store.Keys(ctx, pattern)
		if err != nil {
			return err
		}
		stale = append(stale, ks...)
	}
	if len(stale) > 0 {
		if _, err := m.store.Del(ctx, stale...); err != nil {
			return err
		}
	}

	postKeys, err := m.store.Keys(ctx, "post:*")
	if err != nil {
		return err
	}
	replyCounts := map[string]int64{}
	for _, key := range postKeys {
		h, err := m.store.HGetAll(ctx, key)
		if err != nil {
			return err
		}
		id := key[len("post:"):]
		createdAt, _ := strconv.ParseInt(h["createdAt"], 10, 64)
		if _, err := m.store.ZAdd(ctx, "feedItems", createdAt, id); err != nil {
			return err
		}
		if _, err := m.store.SAdd(ctx, "userPosts:"+keys.Escape(h["authorId"]), id); err != nil {
			return err
		}
		if _, err := m.store.HIncrBy(ctx, "feedStats", "itemCount", 1); err != nil {
			return err
		}
	}

	replyKeys, err := m.store.Keys(ctx, "reply:*")
	if err != nil {
		return err
	}
	for _, key := range replyKeys {
		h, err := m.store.HGetAll(ctx, key)
		if err != nil {
			return err
		}
		id := key[len("reply:"):]
		createdAt, _ := strconv.ParseInt(h["createdAt"], 10, 64)
		if _, err := m.store.ZAdd(ctx, "replyFeedItems", createdAt, id); err != nil {
			return err
		}
		if _, err := m.store.SAdd(ctx, "userReplies:"+keys.Escape(h["authorId"]), id); err != nil {
			return err
		}
		replyCounts[h["parentId"]]++
		if qraw, ok := h["quote"]; ok {
			var q models.Quote
			if err := json.Unmarshal([]byte(qraw), &q); err != nil {
				logger.Warn("rebuild_quote_parse_failed", "key", key, "error", err)
				continue
			}
			qk := keys.QuoteKey(q)
			indexKey := "repliesByParentQuote:" + h["parentId"] + ":" + qk
			if _, err := m.store.ZAdd(ctx, indexKey, createdAt, id); err != nil {
				return err
			}
			if _, err := m.store.HIncrementQuoteCount(ctx, h["parentId"]+":quoteCounts", qk, q); err != nil {
				return err
			}
		}
	}

	for parent, n := range replyCounts {
		if parent == "" {
			continue
		}
		if err := m.store.HSet(ctx, "post:"+parent, "replyCount", strconv.FormatInt(n, 10)); err != nil {
			return err
		}
	}
	return nil
}
