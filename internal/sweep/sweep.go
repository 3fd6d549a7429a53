// Package sweep runs the periodic trial reactivation job. Trials that were
// exhausted more than a configured age ago, and have never been bumped, get
// one persona-voiced follow-up message; only confirmed delivery tops the
// allowance back up and marks the bump given, so a failed send is retried on
// a later pass and no chat ever receives the bump twice.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/config"
	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/notify"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

// TrialBumper periodically reactivates exhausted trials.
type TrialBumper struct {
	db         *gorm.DB
	messenger  notify.Messenger
	characters map[domain.Character]config.CharacterInfo
	interval   time.Duration
	minAge     time.Duration
	topUp      int
}

// NewTrialBumper creates a TrialBumper.
func NewTrialBumper(db *gorm.DB, messenger notify.Messenger, characters map[domain.Character]config.CharacterInfo, interval, minAge time.Duration, topUp int) *TrialBumper {
	return &TrialBumper{
		db:         db,
		messenger:  messenger,
		characters: characters,
		interval:   interval,
		minAge:     minAge,
		topUp:      topUp,
	}
}

// Run starts the sweep loop: one pass immediately, then one per interval.
// It blocks until ctx is cancelled.
func (b *TrialBumper) Run(ctx context.Context) {
	log.Info().Dur("interval", b.interval).Msg("Trial bump sweeper started")

	// First pass right away so a restart does not delay overdue bumps.
	b.Sweep(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Trial bump sweeper stopped")
			return
		case <-ticker.C:
			b.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: select candidates, message each, and top up only
// the ones whose delivery succeeded. Safe to run concurrently with trial
// consumption: the bump update is conditional on bump_given still being
// false.
func (b *TrialBumper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-b.minAge)
	candidates, err := repo.ListBumpCandidates(ctx, b.db, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Trial bump sweep: candidate query failed")
		return
	}
	if len(candidates) == 0 {
		return
	}

	log.Info().Int("count", len(candidates)).Msg("Trial bump sweep: candidates found")

	for _, t := range candidates {
		if ctx.Err() != nil {
			return
		}

		info, ok := b.characters[t.Character]
		if !ok || info.BotToken == "" {
			log.Warn().Str("character", t.Character.String()).Msg("Trial bump sweep: no bot token for character")
			continue
		}

		if err := b.messenger.SendMessage(ctx, info.BotToken, t.ChatID, info.BumpMessage); err != nil {
			// Leave the row untouched; the next sweep retries.
			log.Error().
				Err(err).
				Str("chat_id", t.ChatID).
				Str("character", t.Character.String()).
				Msg("Trial bump sweep: delivery failed")
			continue
		}

		if err := repo.BumpTrial(ctx, b.db, t.ChatID, t.Character, b.topUp); err != nil {
			log.Error().
				Err(err).
				Str("chat_id", t.ChatID).
				Str("character", t.Character.String()).
				Msg("Trial bump sweep: top-up update failed")
			continue
		}

		log.Info().
			Str("chat_id", t.ChatID).
			Str("character", t.Character.String()).
			Int("top_up", b.topUp).
			Msg("Trial bump sweep: trial reactivated")
	}
}
