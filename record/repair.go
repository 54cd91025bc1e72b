package record

import (
	"context"

	"github.com/stevemurr/grocery-chat-server/index"
	"github.com/stevemurr/grocery-chat-server/keys"
)

// RepairReport counts the index entries Repair changed.
type RepairReport struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Repair reconciles the owner indexes of collection with its records. It
// removes entries whose record is missing or owned by someone else, and
// indexes owned records that no index lists. Re-indexed records are scored
// by updatedAt, then createdAt, then the current time.
//
// Repair is never run by the other Engine methods.
func (e *Engine) Repair(ctx context.Context, collection string) (RepairReport, error) {
	var report RepairReport

	records, err := e.Scan(ctx, collection)
	if err != nil {
		return report, err
	}
	live := make(map[string]Record, len(records))
	for _, rec := range records {
		if rec.Owner() != "" {
			live[keys.Record(collection, rec.ID())] = rec
		}
	}

	owners, err := e.index.Owners(ctx, collection)
	if err != nil {
		return report, unavailable("scan", keys.Prefix(index.Namespace, collection), err)
	}
	indexed := make(map[string]bool, len(live))
	for _, owner := range owners {
		members, err := e.index.List(ctx, owner, collection)
		if err != nil {
			return report, unavailable("list", index.Key(collection, owner), err)
		}
		for _, member := range members {
			rec, ok := live[member]
			if ok && rec.Owner() == owner && !indexed[member] {
				indexed[member] = true
				continue
			}
			if err := e.index.Remove(ctx, owner, collection, member); err != nil {
				return report, unavailable("unindex", member, err)
			}
			report.Removed++
			RepairActions.WithLabelValues(collection, "removed").Inc()
			e.logger.Info("removed index entry", "collection", collection, "owner", owner, "key", member)
		}
	}

	for key, rec := range live {
		if indexed[key] {
			continue
		}
		score, ok := scoreOf(rec["updatedAt"])
		if !ok {
			score, ok = scoreOf(rec["createdAt"])
		}
		if !ok {
			score = e.scores.next()
		}
		if err := e.index.Add(ctx, rec.Owner(), collection, key, score); err != nil {
			return report, unavailable("index", key, err)
		}
		report.Added++
		RepairActions.WithLabelValues(collection, "added").Inc()
		e.logger.Info("indexed record", "collection", collection, "owner", rec.Owner(), "key", key)
	}
	return report, nil
}
