package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"aphorist/pkg/commands"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
)

// ValidationError is one post-migration structural or referential
// discrepancy. The collection of these is the dead-letter payload.
type ValidationError struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Err  string `json:"error"`
	Key  string `json:"key,omitempty"`
	Data any    `json:"data,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation %s %s: %s", e.Type, e.ID, e.Err)
}

// validate re-reads every migrated entity and every derived index.
// Discrepancies are accumulated, never thrown.
func (m *Migrator) validate(ctx context.Context) []ValidationError {
	var errs []ValidationError
	errs = append(errs, ValidateEntities(ctx, m.store)...)
	errs = append(errs, ValidateIndexes(ctx, m.store)...)
	return errs
}

// ValidateEntities structurally verifies required fields and types on every
// post and reply. Exported so the integrity sweep can reuse it.
func ValidateEntities(ctx context.Context, store commands.Store) []ValidationError {
	var errs []ValidationError

	postKeys, err := store.Keys(ctx, "post:*")
	if err != nil {
		return append(errs, ValidationError{Type: "post", Err: "enumerate: " + err.Error()})
	}
	for _, key := range postKeys {
		id := key[len("post:"):]
		h, err := store.HGetAll(ctx, key)
		if err != nil {
			errs = append(errs, ValidationError{ID: id, Type: "post", Err: err.Error(), Key: key})
			continue
		}
		errs = append(errs, checkFields(id, "post", key, h, []string{"content", "authorId", "createdAt"})...)
	}

	replyKeys, err := store.Keys(ctx, "reply:*")
	if err != nil {
		return append(errs, ValidationError{Type: "reply", Err: "enumerate: " + err.Error()})
	}
	for _, key := range replyKeys {
		id := key[len("reply:"):]
		h, err := store.HGetAll(ctx, key)
		if err != nil {
			errs = append(errs, ValidationError{ID: id, Type: "reply", Err: err.Error(), Key: key})
			continue
		}
		errs = append(errs, checkFields(id, "reply", key, h, []string{"text", "parentId", "rootPostId", "authorId", "createdAt"})...)
		if qraw, ok := h["quote"]; ok {
			var q models.Quote
			if err := json.Unmarshal([]byte(qraw), &q); err != nil {
				errs = append(errs, ValidationError{ID: id, Type: "reply", Err: "malformed quote: " + err.Error(), Key: key, Data: qraw})
			}
		}
	}
	return errs
}

func checkFields(id, typ, key string, h map[string]string, required []string) []ValidationError {
	var errs []ValidationError
	for _, f := range required {
		v, ok := h[f]
		if !ok || v == "" {
			errs = append(errs, ValidationError{ID: id, Type: typ, Err: "missing required field " + f, Key: key, Data: h})
			continue
		}
		if f == "createdAt" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				errs = append(errs, ValidationError{ID: id, Type: typ, Err: "createdAt is not numeric", Key: key, Data: v})
			}
		}
	}
	return errs
}

// ValidateIndexes verifies referential integrity between entities and the
// derived indexes: feed members must reference existing entities, the feed
// counter must equal the feed cardinality, and every quote counter must
// equal the cardinality of its reply index.
func ValidateIndexes(ctx context.Context, store commands.Store) []ValidationError {
	var errs []ValidationError

	feed, err := store.ZRange(ctx, "feedItems", 0, -1)
	if err != nil {
		return append(errs, ValidationError{Type: "index", Err: "feedItems read: " + err.Error(), Key: "feedItems"})
	}
	for _, id := range feed {
		h, err := store.HGetAll(ctx, "post:"+id)
		if err != nil || len(h) == 0 {
			errs = append(errs, ValidationError{ID: id, Type: "index", Err: "feed item references missing post", Key: "feedItems"})
		}
	}

	feedCard, err := store.ZCard(ctx, "feedItems")
	if err != nil {
		errs = append(errs, ValidationError{Type: "index", Err: "feedItems zcard: " + err.Error(), Key: "feedItems"})
	} else if counter, ok, err := store.HGet(ctx, "feedStats", "itemCount"); err == nil && ok {
		n, perr := strconv.ParseInt(counter, 10, 64)
		if perr != nil || n != feedCard {
			errs = append(errs, ValidationError{
				Type: "index", Key: "feedStats",
				Err:  fmt.Sprintf("feed counter %s != feed cardinality %d", counter, feedCard),
				Data: counter,
			})
		}
	} else if err != nil {
		errs = append(errs, ValidationError{Type: "index", Err: "feedStats read: " + err.Error(), Key: "feedStats"})
	} else if feedCard > 0 {
		errs = append(errs, ValidationError{Type: "index", Err: "feedStats counter missing", Key: "feedStats"})
	}

	// Quote counters against their reply indexes.
	counterKeys, err := store.Keys(ctx, "*:quoteCounts")
	if err != nil {
		return append(errs, ValidationError{Type: "index", Err: "quoteCounts enumerate: " + err.Error()})
	}
	for _, ck := range counterKeys {
		parent := ck[:len(ck)-len(":quoteCounts")]
		fields, err := store.HGetAll(ctx, ck)
		if err != nil {
			errs = append(errs, ValidationError{ID: parent, Type: "index", Err: err.Error(), Key: ck})
			continue
		}
		for qk, raw := range fields {
			var qc commands.QuoteCount
			if err := json.Unmarshal([]byte(raw), &qc); err != nil {
				errs = append(errs, ValidationError{ID: parent, Type: "index", Err: "malformed quote counter: " + err.Error(), Key: ck, Data: raw})
				continue
			}
			indexKey := "repliesByParentQuote:" + parent + ":" + qk
			card, err := store.ZCard(ctx, indexKey)
			if err != nil {
				errs = append(errs, ValidationError{ID: parent, Type: "index", Err: err.Error(), Key: indexKey})
				continue
			}
			if card != qc.Count {
				errs = append(errs, ValidationError{
					ID: parent, Type: "index", Key: indexKey,
					Err:  fmt.Sprintf("quote counter %d != reply index cardinality %d", qc.Count, card),
					Data: raw,
				})
			}
		}
	}

	if len(errs) > 0 {
		logger.Warn("index_validation_discrepancies", "count", len(errs))
	}
	return errs
}
