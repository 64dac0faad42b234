package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/sigp/eleel/internal/config"
)

// flagSet wraps flag.FlagSet to add support for uint64 flags, which the
// standard library's flag package lacks.
type flagSet struct {
	*flag.FlagSet
}

func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}

func (fs *flagSet) Uint64Var(p *uint64, name string, value uint64, usage string) {
	fs.FlagSet.Var(&uint64Value{p: p}, name, usage)
	*p = value
}

type uint64Value struct{ p *uint64 }

func (v *uint64Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatUint(*v.p, 10)
}

func (v *uint64Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %q", s)
	}
	*v.p = n
	return nil
}

// newFlagSet binds every CLI flag to cfg.
func newFlagSet(cfg *config.Config) *flagSet {
	fs := newCustomFlagSet("eleel")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.EngineURL, "engine-url", cfg.EngineURL, "execution engine Engine-API URL")
	fs.StringVar(&cfg.ControllerSecret, "controller-secret", cfg.ControllerSecret, "JWT secret for the controller endpoint")
	fs.StringVar(&cfg.FcuCachePolicy, "fcu-cache-policy", cfg.FcuCachePolicy, "fcU matching policy: exact, loose, head_only")
	fs.IntVar(&cfg.FcuCacheSize, "fcu-cache-size", cfg.FcuCacheSize, "fcU cache capacity")
	fs.IntVar(&cfg.NewPayloadCacheSize, "new-payload-cache-size", cfg.NewPayloadCacheSize, "newPayload cache capacity")
	fs.Uint64Var(&cfg.NewPayloadRecencyCutoff, "new-payload-recency-cutoff", cfg.NewPayloadRecencyCutoff, "liveness window in blocks")
	fs.IntVar(&cfg.PayloadCacheSize, "payload-cache-size", cfg.PayloadCacheSize, "built payload cache capacity")
	fs.IntVar(&cfg.FcuWaitMillis, "fcu-wait-millis", cfg.FcuWaitMillis, "max wait for a controller fcU to resolve a follower call")
	fs.IntVar(&cfg.NewPayloadWaitMillis, "new-payload-wait-millis", cfg.NewPayloadWaitMillis, "max wait for a newPayload call to resolve")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0-1=error, 2=warn, 3=info, 4-5=debug)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotate logs to this file instead of stderr")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "enable Prometheus metrics")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address")
	return fs
}
