package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/logger"
	"github.com/splitlab/splitlab/internal/store"
)

// withEngine wires up logger, store, cache and engine, executes the
// function, and handles cleanup.
func withEngine(fn func(ctx context.Context, engine *experiment.Service) error) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	var c cache.Cache = cache.Noop{}
	if redisAddr != "" {
		c = cache.NewRedis(redisAddr, log)
	}

	engine := experiment.New(s, c, experiment.SystemClock{}, experiment.NewRandom(), log)
	return fn(context.Background(), engine)
}

// parseVariants parses a comma-separated variant list. Each entry is either
// "name:allocation" or a bare name; bare names share traffic evenly.
func parseVariants(input string) ([]store.Variant, error) {
	entries := strings.Split(input, ",")
	variants := make([]store.Variant, 0, len(entries))
	explicit := false

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, allocStr, hasAlloc := strings.Cut(entry, ":")
		v := store.Variant{Name: strings.TrimSpace(name)}
		if hasAlloc {
			alloc, err := strconv.ParseFloat(strings.TrimSpace(allocStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid allocation in %q: %w", entry, err)
			}
			v.TrafficAllocation = alloc
			explicit = true
		}
		variants = append(variants, v)
	}

	if len(variants) == 0 {
		return nil, fmt.Errorf("no variants given")
	}
	if !explicit {
		share := 100.0 / float64(len(variants))
		for i := range variants {
			variants[i].TrafficAllocation = share
		}
	}
	return variants, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
