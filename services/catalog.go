package services

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pepe999/PartyGames-BE/models"
)

const promptCacheSize = 100

// promptEntry pairs a prompt row with its payload, validated once at
// ingestion so the session loop never re-parses.
type promptEntry struct {
	Prompt  models.Prompt
	Payload models.PromptPayload
}

// PromptCatalog caches up to promptCacheSize approved prompts per
// (game, kind) and draws from them at random with replacement. Repeats
// within one session are possible.
type PromptCatalog struct {
	store Store
	mu    sync.Mutex
	cache map[catalogKey][]promptEntry
	log   zerolog.Logger
}

type catalogKey struct {
	gameID uint
	kind   string
}

func NewPromptCatalog(store Store, log zerolog.Logger) *PromptCatalog {
	return &PromptCatalog{
		store: store,
		cache: make(map[catalogKey][]promptEntry),
		log:   log.With().Str("component", "catalog").Logger(),
	}
}

// Draw picks a random approved prompt for the game. Prompts with payloads
// that fail validation are dropped at load time, not at every use site.
func (c *PromptCatalog) Draw(ctx context.Context, gameID uint, kind string) (*promptEntry, error) {
	entries, err := c.load(ctx, gameID, kind)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoPrompts
	}
	entry := entries[rand.Intn(len(entries))]
	return &entry, nil
}

// Invalidate drops the cached prompts for a game so the next draw reloads
// from the store.
func (c *PromptCatalog) Invalidate(gameID uint, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, catalogKey{gameID: gameID, kind: kind})
}

func (c *PromptCatalog) load(ctx context.Context, gameID uint, kind string) ([]promptEntry, error) {
	key := catalogKey{gameID: gameID, kind: kind}

	c.mu.Lock()
	entries, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return entries, nil
	}

	prompts, err := c.store.ListApprovedPrompts(ctx, gameID, kind, promptCacheSize)
	if err != nil {
		return nil, transient("listing approved prompts", err)
	}

	entries = make([]promptEntry, 0, len(prompts))
	for _, p := range prompts {
		payload, err := p.ParsePayload()
		if err != nil {
			c.log.Warn().Uint("prompt", p.ID).Err(err).Msg("skipping malformed prompt")
			continue
		}
		entries = append(entries, promptEntry{Prompt: p, Payload: payload})
	}

	c.mu.Lock()
	c.cache[key] = entries
	c.mu.Unlock()
	return entries, nil
}
