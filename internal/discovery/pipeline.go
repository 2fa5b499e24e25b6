package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// EntryHook is notified after promotion writes a catalog entry.
type EntryHook interface {
	RecomputeByID(ctx context.Context, entryID string) error
}

// Config tunes scoring and promotion.
type Config struct {
	Weights           Weights
	Threshold         int
	ExpiryDays        int
	LifecyclePriority int
}

// DefaultConfig returns the stock scoring weights, threshold 50, a 7 day
// cache expiry and the default lifecycle priority.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		Threshold:         DefaultThreshold,
		ExpiryDays:        7,
		LifecyclePriority: lifecycle.DefaultPriority,
	}
}

// Pipeline runs ingest, validation and promotion against a Store.
type Pipeline struct {
	store Store
	runs  *runlog.Log
	hook  EntryHook
	cfg   Config
	now   func() time.Time
}

// NewPipeline creates a Pipeline. runs may be nil, in which case sweeps are
// not recorded.
func NewPipeline(store Store, runs *runlog.Log, cfg Config) *Pipeline {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = 7
	}
	return &Pipeline{store: store, runs: runs, cfg: cfg, now: time.Now}
}

// WithEntryHook registers h to run after each successful promotion.
func (p *Pipeline) WithEntryHook(h EntryHook) *Pipeline {
	p.hook = h
	return p
}

// Ingest records one sighting of a candidate. Unchanged content only bumps
// last_seen_at; changed content is rescored and, unless already promoted,
// sent back to raw.
func (p *Pipeline) Ingest(ctx context.Context, c Candidate) (IngestOutcome, *Item, error) {
	if strings.TrimSpace(c.SourceID) == "" {
		return "", nil, eris.New("discovery: candidate has no source id")
	}
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.URL) == "" {
		return "", nil, eris.New("discovery: candidate has neither title nor url")
	}

	now := p.now().UTC()
	key := DedupeKey(c.SourceID, c.URL, c.Title)
	hash := ContentHash(c)
	raw, err := json.Marshal(c)
	if err != nil {
		return "", nil, eris.Wrapf(err, "discovery: encode candidate %s", key)
	}

	existing, err := p.store.FindByDedupeKey(ctx, key)
	if err != nil {
		return "", nil, err
	}

	if existing == nil {
		it := &Item{
			ID:          uuid.NewString(),
			DedupeKey:   key,
			SourceID:    c.SourceID,
			Title:       c.Title,
			Summary:     c.Summary,
			URL:         c.URL,
			RegionCode:  c.RegionCode,
			Stage:       StageRaw,
			ContentHash: hash,
			Raw:         raw,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		it.QualityScore = Score(*it, p.cfg.Weights)
		if err := p.store.Insert(ctx, it); err != nil {
			return "", nil, err
		}
		return OutcomeInserted, it, nil
	}

	if existing.ContentHash == hash {
		if err := p.store.Touch(ctx, existing.ID, now); err != nil {
			return "", nil, err
		}
		existing.LastSeenAt = now
		return OutcomeTouched, existing, nil
	}

	existing.Title = c.Title
	existing.Summary = c.Summary
	existing.URL = c.URL
	existing.RegionCode = c.RegionCode
	existing.ContentHash = hash
	existing.Raw = raw
	existing.LastSeenAt = now
	existing.QualityScore = Score(*existing, p.cfg.Weights)
	if existing.Stage != StagePromoted {
		existing.Stage = StageRaw
		existing.ValidationNote = ""
	}
	if err := p.store.Refresh(ctx, existing); err != nil {
		return "", nil, err
	}
	return OutcomeChanged, existing, nil
}

// Validate scores a raw item and moves it to validated or rejected.
func (p *Pipeline) Validate(ctx context.Context, it *Item) (Stage, error) {
	if it.Stage != StageRaw {
		return it.Stage, eris.Wrapf(ErrInvalidStage, "discovery: validate %s from %s", it.ID, it.Stage)
	}

	score := Score(*it, p.cfg.Weights)
	stage, note := StageValidated, validatedNote(score)
	if score < p.cfg.Threshold {
		stage, note = StageRejected, rejectedNote(score, p.cfg.Threshold)
	}

	if err := p.store.SetStage(ctx, it.ID, stage, score, note, p.now().UTC()); err != nil {
		return it.Stage, err
	}
	it.Stage = stage
	it.QualityScore = score
	it.ValidationNote = note
	return stage, nil
}

// Promote publishes a validated item as a catalog entry keyed by the item id.
func (p *Pipeline) Promote(ctx context.Context, it *Item) (*catalog.Entry, error) {
	if it.Stage != StageValidated {
		return nil, eris.Wrapf(ErrNotValidated, "discovery: promote %s from %s", it.ID, it.Stage)
	}

	now := p.now().UTC()
	entry := entryFromItem(*it)
	entry.ExpiresAt = now.Add(time.Duration(p.cfg.ExpiryDays) * 24 * time.Hour)

	if err := p.store.Promote(ctx, *it, entry, PromoteOpts{
		LifecyclePriority: p.cfg.LifecyclePriority,
		Note:              PromotionNote,
		Now:               now,
	}); err != nil {
		return nil, err
	}

	id := entry.ID
	it.Stage = StagePromoted
	it.PromotedToID = &id
	it.PromotedAt = &now

	if p.hook != nil {
		if err := p.hook.RecomputeByID(ctx, entry.ID); err != nil {
			zap.L().Warn("discovery: readiness recompute after promotion failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
	return &entry, nil
}

// ValidateSweep validates up to limit raw items in one recorded run.
func (p *Pipeline) ValidateSweep(ctx context.Context, limit int) (runlog.Summary, error) {
	return p.runs.Run(ctx, "validate", func(ctx context.Context, b *runlog.Batch) error {
		items, err := p.store.ListByStage(ctx, StageRaw, limit)
		if err != nil {
			return err
		}
		b.Started()
		p.validateItems(ctx, b, items)
		return nil
	})
}

// PromoteSweep validates raw items and then promotes validated ones, best
// score first, in one recorded run.
func (p *Pipeline) PromoteSweep(ctx context.Context, validateLimit, promoteLimit int) (runlog.Summary, error) {
	return p.runs.Run(ctx, "promote", func(ctx context.Context, b *runlog.Batch) error {
		log := zap.L().With(zap.String("job", "promote"))

		raw, err := p.store.ListByStage(ctx, StageRaw, validateLimit)
		if err != nil {
			return err
		}
		b.Started()
		p.validateItems(ctx, b, raw)

		validated, err := p.store.ListByStage(ctx, StageValidated, promoteLimit)
		if err != nil {
			b.AddError(err.Error())
			return nil
		}
		for i := range validated {
			if ctx.Err() != nil {
				break
			}
			it := &validated[i]
			b.Process()
			if _, err := p.Promote(ctx, it); err != nil {
				log.Warn("promote failed", zap.String("item_id", it.ID), zap.Error(err))
				b.Fail(it.ID, err)
				continue
			}
			b.Insert()
			b.Add("promoted", 1)
		}

		log.Info("promote complete",
			zap.Int("validated", b.Counter("validated")),
			zap.Int("rejected", b.Counter("rejected")),
			zap.Int("promoted", b.Counter("promoted")),
		)
		return nil
	})
}

func (p *Pipeline) validateItems(ctx context.Context, b *runlog.Batch, items []Item) {
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		it := &items[i]
		b.Process()
		stage, err := p.Validate(ctx, it)
		if err != nil {
			b.Fail(it.ID, err)
			continue
		}
		if stage == StageValidated {
			b.Update()
			b.Add("validated", 1)
		} else {
			b.Skip()
			b.Add("rejected", 1)
		}
	}
}

// Stats returns item counts per stage.
func (p *Pipeline) Stats(ctx context.Context) (map[Stage]int, error) {
	return p.store.StageCounts(ctx)
}

func entryFromItem(it Item) catalog.Entry {
	var c Candidate
	if len(it.Raw) > 0 {
		if err := json.Unmarshal(it.Raw, &c); err != nil {
			zap.L().Debug("discovery: raw payload not decodable", zap.String("item_id", it.ID), zap.Error(err))
		}
	}

	return catalog.Entry{
		ID:          it.ID,
		Source:      it.SourceID,
		Title:       it.Title,
		ContentHash: it.ContentHash,
		DetailURL:   it.URL,
		Fields: catalog.Fields{
			MaxAmount:   c.MaxAmount,
			Rate:        c.Rate,
			Deadline:    c.Deadline,
			Overview:    it.Summary,
			RegionCode:  it.RegionCode,
			OfficialURL: it.URL,
			Attachments: c.Attachments,
			SourceState: c.Status,
			Extra:       c.Extra,
		},
	}
}
