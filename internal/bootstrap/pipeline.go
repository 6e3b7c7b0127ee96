package bootstrap

import (
	"fmt"
	"log"
	"time"

	"github.com/stylesync/stylesync-backend/config"
	"github.com/stylesync/stylesync-backend/internal/color_advice/cache"
	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
	"github.com/stylesync/stylesync-backend/internal/color_advice/fingerprint"
	"github.com/stylesync/stylesync-backend/internal/color_advice/phases"
	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
	"github.com/stylesync/stylesync-backend/internal/color_advice/service"
)

// Pipeline is the assembled advice pipeline and the shared state other
// components (health, maintenance) report on.
type Pipeline struct {
	Orchestrator *service.Orchestrator
	Cache        *cache.Cache
	Breakers     *reliability.Registry
}

// BuildPipeline wires adapters, cache, fingerprints and breakers from cfg.
// store and assets may be nil: the cache then runs on its in-process LRU and
// asset references are rejected.
func BuildPipeline(cfg *config.Config, store cache.Store, assets service.AssetResolver) (*Pipeline, error) {
	phaseCfgs := cfg.Phases.All()
	defaults := fingerprint.DefaultPolicies()

	policies := make(map[domain.PhaseName]fingerprint.PhasePolicy, len(phaseCfgs))
	breakerCfgs := make(map[domain.PhaseName]reliability.BreakerConfig, len(phaseCfgs))
	timeouts := make(map[domain.PhaseName]time.Duration, len(phaseCfgs))
	var adapters []phases.Adapter

	for _, name := range domain.PipelineOrder {
		pc := phaseCfgs[name]

		params := pc.CacheParams
		if params == nil {
			params = defaults[name].CacheParams
		}
		policies[name] = fingerprint.PhasePolicy{
			Version:       pc.PolicyVersion,
			CacheParams:   params,
			NearDuplicate: pc.NearDuplicate,
		}
		breakerCfgs[name] = reliability.BreakerConfig{
			FailureThreshold: pc.FailureThreshold,
			FailureWindow:    pc.FailureWindow,
			RecoveryTimeout:  pc.RecoveryTimeout,
		}
		timeouts[name] = pc.Timeout

		switch {
		case pc.URL != "":
			adapters = append(adapters, phases.NewHTTPAdapter(name, pc.URL))
		case name == domain.PhaseHarmony:
			log.Printf("HARMONY_URL not set - using the in-process harmony adapter")
			adapters = append(adapters, phases.NewLocalHarmony())
		default:
			log.Printf("Warning: %s service URL not set - image requests are disabled", name)
		}
	}

	set, err := phases.NewSet(adapters...)
	if err != nil {
		return nil, fmt.Errorf("phase adapters: %w", err)
	}

	c := cache.New(store, cache.Options{
		OpTimeout: cfg.Redis.OpTimeout,
		LRUSize:   cfg.Cache.LRUSize,
	})
	breakers := reliability.NewRegistry(breakerCfgs, nil)

	orch, err := service.NewOrchestrator(service.Deps{
		Adapters:     set,
		Cache:        c,
		Fingerprints: fingerprint.NewService(policies),
		Manager:      reliability.NewManager(breakers, timeouts),
		Assets:       assets,
	}, service.Config{
		L1TTL:          cfg.Cache.L1TTL,
		IdempotencyTTL: cfg.Cache.IdempotencyTTL,
		PhaseTTL: map[domain.PhaseName]time.Duration{
			domain.PhaseSegmentation: cfg.Cache.SegmentationTTL,
			domain.PhaseExtraction:   cfg.Cache.ExtractionTTL,
			domain.PhaseHarmony:      cfg.Cache.HarmonyTTL,
		},
		RequestSlack:   cfg.Pipeline.RequestSlack,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{Orchestrator: orch, Cache: c, Breakers: breakers}, nil
}
