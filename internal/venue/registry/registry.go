// Package registry wires the per-venue clients behind the uniform Adapter
// interface and applies the operator's exclusion list.
package registry

import (
	"strings"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
	"arbscan/internal/venue/binance"
	"arbscan/internal/venue/bingx"
	"arbscan/internal/venue/bitget"
	"arbscan/internal/venue/bybit"
	"arbscan/internal/venue/gate"
	"arbscan/internal/venue/lbank"
	"arbscan/internal/venue/mexc"
	"arbscan/internal/venue/okx"
	"arbscan/internal/venue/xt"
)

// Options selects venues and carries the credentials trading venues need.
type Options struct {
	Exclude []string // venue ids to skip, case-insensitive

	BybitAPIKey    string
	BybitAPISecret string
	GateAPIKey     string
	GateAPISecret  string
}

// Registry holds the live adapters plus direct handles to the two venues
// with trading support.
type Registry struct {
	adapters map[venue.ID]venue.Adapter

	Bybit *bybit.Client
	Gate  *gate.Client
}

// New builds every non-excluded adapter.
func New(opts Options) *Registry {
	excluded := make(map[venue.ID]bool, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[venue.ID(strings.ToLower(strings.TrimSpace(e)))] = true
	}

	r := &Registry{adapters: make(map[venue.ID]venue.Adapter)}
	for _, id := range venue.All() {
		if excluded[id] {
			log.Info().Str("venue", string(id)).Msg("Venue excluded from scan")
			continue
		}
		switch id {
		case venue.Bybit:
			r.Bybit = bybit.New(bybit.Config{APIKey: opts.BybitAPIKey, APISecret: opts.BybitAPISecret})
			r.adapters[id] = r.Bybit
		case venue.Gate:
			r.Gate = gate.New(gate.Config{APIKey: opts.GateAPIKey, APISecret: opts.GateAPISecret})
			r.adapters[id] = r.Gate
		case venue.MEXC:
			r.adapters[id] = mexc.New(mexc.Config{})
		case venue.XT:
			r.adapters[id] = xt.New(xt.Config{})
		case venue.Binance:
			r.adapters[id] = binance.New(binance.Config{})
		case venue.Bitget:
			r.adapters[id] = bitget.New(bitget.Config{})
		case venue.OKX:
			r.adapters[id] = okx.New(okx.Config{})
		case venue.BingX:
			r.adapters[id] = bingx.New(bingx.Config{})
		case venue.LBank:
			r.adapters[id] = lbank.New(lbank.Config{})
		}
	}
	return r
}

// Get returns the adapter for id, or nil when excluded/unknown.
func (r *Registry) Get(id venue.ID) venue.Adapter {
	return r.adapters[id]
}

// All returns the live adapters keyed by venue id.
func (r *Registry) All() map[venue.ID]venue.Adapter {
	return r.adapters
}

// IDs returns the live venue ids in canonical order.
func (r *Registry) IDs() []venue.ID {
	out := make([]venue.ID, 0, len(r.adapters))
	for _, id := range venue.All() {
		if _, ok := r.adapters[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Close shuts every adapter down.
func (r *Registry) Close() {
	for _, a := range r.adapters {
		_ = a.Close()
	}
}
