// Package enforcer implements the policy enforcer (C5): the public entry
// point that loads a policy file into a catalog.Catalog and evaluates
// rules against a target and a set of credentials.
package enforcer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/garenchan/policy/internal/cache"
	"github.com/garenchan/policy/internal/catalog"
	"github.com/garenchan/policy/internal/domain/check"
	"github.com/garenchan/policy/internal/metrics"
)

// Enforcer loads and enforces policy rules from a JSON policy file. The
// zero value is not usable; construct with NewEnforcer.
//
// An Enforcer is safe for concurrent use: the catalog is swapped via an
// atomic pointer on reload, so Enforce calls in flight during a reload see
// either the old or the fully-installed new catalog, never a partial one.
type Enforcer struct {
	policyFile  string
	registry    *check.Registry
	fileCache   *cache.FileCache
	logger      *slog.Logger
	metrics     *metrics.Metrics
	raiseError  bool
	loadOnce    bool
	defaultRule any
	maxDepth    int

	catalog    atomic.Pointer[catalog.Catalog]
	generation atomic.Pointer[string]

	loaded atomic.Bool
	loadMu sync.Mutex
}

// Option configures an Enforcer built by NewEnforcer.
type Option func(*Enforcer)

// WithInitialRules seeds the enforcer with already-known rules (rule name
// -> DSL string) before the policy file is ever loaded, matching the
// Python original's constructor `rules` parameter. These are parsed
// eagerly and replaced wholesale the first time LoadRules gets a fresh
// read of the policy file from the file cache; if the cache reports the
// file unchanged (e.g. another Enforcer sharing the cache already read
// it), the initial rules stay in place.
func WithInitialRules(rules map[string]string) Option {
	return func(e *Enforcer) {
		c, err := catalog.FromRuleStrings(rules, e.registry, e.raiseError, e.logger, e.onInvalidRule,
			catalog.WithDefaultRule(e.defaultRule), catalog.WithMaxRecursionDepth(e.maxDepth))
		if err != nil {
			// WithInitialRules is only used with raiseError=false in
			// practice (rules are typically attacker-free literals); a
			// parse failure here cannot actually occur unless raiseError
			// is also set, in which case surfacing it at construction
			// time would require NewEnforcer to return an error for this
			// path alone. Fail closed instead: start with an empty
			// catalog and let the next LoadRules attempt populate it.
			return
		}
		e.catalog.Store(c)
	}
}

// WithDefaultRule sets the rule consulted when a named rule is missing
// from the catalog. Accepts a rule name (string) or a pre-built check.Check.
func WithDefaultRule(rule any) Option {
	return func(e *Enforcer) { e.defaultRule = rule }
}

// WithRaiseError makes Enforce return a *PolicyNotAuthorized error instead
// of (false, nil) when a rule denies, and makes rule parsing raise
// *parser.InvalidRuleError instead of failing closed to check.False.
func WithRaiseError(raiseError bool) Option {
	return func(e *Enforcer) { e.raiseError = raiseError }
}

// WithLoadOnce controls whether LoadRules is a no-op after its first
// successful load (the default, matching the Python original) or re-reads
// the policy file (consulting its mtime) on every call.
func WithLoadOnce(loadOnce bool) Option {
	return func(e *Enforcer) { e.loadOnce = loadOnce }
}

// WithFileCache overrides the file cache used to read the policy file.
// Defaults to cache.Shared, the process-wide cache.
func WithFileCache(c *cache.FileCache) Option {
	return func(e *Enforcer) { e.fileCache = c }
}

// WithRegistry overrides the base-check registry used to parse rules.
// Defaults to a fresh check.NewRegistry().
func WithRegistry(r *check.Registry) Option {
	return func(e *Enforcer) { e.registry = r }
}

// WithLogger overrides the structured logger used for diagnostics.
// Defaults to slog.Default(); a nil logger also selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
	}
}

// WithMetrics attaches Prometheus instrumentation. Omit to record nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enforcer) { e.metrics = m }
}

// WithMaxRecursionDepth bounds "rule:" reference chains. Defaults to
// catalog.DefaultMaxRecursionDepth.
func WithMaxRecursionDepth(depth int) Option {
	return func(e *Enforcer) { e.maxDepth = depth }
}

// NewEnforcer constructs an Enforcer bound to policyFile. The file is not
// read until the first call to LoadRules (directly, or implicitly via
// Enforce).
func NewEnforcer(policyFile string, opts ...Option) *Enforcer {
	e := &Enforcer{
		policyFile: policyFile,
		registry:   check.NewRegistry(),
		fileCache:  cache.Shared,
		logger:     slog.Default(),
		raiseError: false,
		loadOnce:   true,
		maxDepth:   catalog.DefaultMaxRecursionDepth,
	}
	empty := catalog.New(nil, catalog.WithMaxRecursionDepth(e.maxDepth))
	e.catalog.Store(empty)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// onInvalidRule is passed to catalog.FromRuleStrings/LoadJSON as the
// parse-failure hook, incrementing the parse-errors counter if metrics
// are attached.
func (e *Enforcer) onInvalidRule(rule string) {
	if e.metrics != nil {
		e.metrics.ParseErrorsTotal.Inc()
	}
}

// LoadRules loads rules from the policy file (or the shared file cache),
// parsing them into a fresh catalog and installing it atomically. With the
// default load-once behavior, a second call is a no-op once a load has
// succeeded; forceReload bypasses the file cache's mtime check to force a
// fresh read from disk regardless. overwrite controls whether the new
// rules replace the existing catalog wholesale (the default) or are merged
// into it, with the new rules winning on a name collision.
//
// Double-checked locking mirrors the Python original: the fast path (no
// lock) handles the overwhelmingly common case of an already-loaded,
// load-once enforcer; the lock only guards the rare reload path.
func (e *Enforcer) LoadRules(forceReload, overwrite bool) error {
	if e.loadOnce && e.loaded.Load() {
		return nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if e.loadOnce && e.loaded.Load() {
		return nil
	}

	reloaded, data, err := e.fileCache.Read(e.policyFile, forceReload)
	if err != nil {
		return fmt.Errorf("read policy file %q: %w", e.policyFile, err)
	}

	current := e.catalog.Load()
	if !reloaded && !current.Empty() {
		e.loaded.Store(true)
		return nil
	}

	loadedCatalog, err := catalog.LoadJSON(data, e.registry, e.raiseError, e.logger, e.onInvalidRule,
		catalog.WithDefaultRule(e.defaultRule), catalog.WithMaxRecursionDepth(e.maxDepth))
	if err != nil {
		return fmt.Errorf("parse policy file %q: %w", e.policyFile, err)
	}

	if !overwrite {
		loadedCatalog = current.Merge(loadedCatalog)
	}

	generation := uuid.NewString()
	e.catalog.Store(loadedCatalog)
	e.generation.Store(&generation)
	e.loaded.Store(true)

	if e.metrics != nil {
		e.metrics.ReloadsTotal.Inc()
	}
	e.logger.Debug("policy enforcer: reloaded policy file",
		"policy_file", e.policyFile,
		"generation", generation,
		"rules", loadedCatalog.Len(),
		"policy_hash", fmt.Sprintf("%x", xxhash.Sum64(data)),
	)
	return nil
}

// Generation returns an opaque identifier for the currently installed
// catalog, stamped on each successful reload that replaced it. It is
// empty until the first reload actually installs new rules (as opposed to
// a no-op LoadRules call that found nothing to do).
func (e *Enforcer) Generation() string {
	g := e.generation.Load()
	if g == nil {
		return ""
	}
	return *g
}

// Enforce checks whether rule authorizes target against cred. rule may be
// a rule name (looked up in the loaded catalog, falling back to the
// configured default rule on a miss) or a pre-built check.Check evaluated
// directly. target and cred are wrapped via check.Wrap, so plain structs
// and map[string]any are both accepted.
//
// If the enforcer is configured with WithRaiseError(true), a denial
// returns a *PolicyNotAuthorized error instead of (false, nil).
func (e *Enforcer) Enforce(rule any, target, cred any) (bool, error) {
	if err := e.LoadRules(false, true); err != nil {
		return false, err
	}

	wrappedTarget := check.Wrap(target)
	wrappedCred := check.Wrap(cred)
	c := e.catalog.Load()

	var result bool
	switch r := rule.(type) {
	case check.Check:
		result = r.Eval(wrappedTarget, wrappedCred, c.Resolver())
	case string:
		if c.Empty() {
			result = false
		} else if ch, ok := c.Lookup(r); ok {
			result = ch.Eval(wrappedTarget, wrappedCred, c.Resolver())
		} else {
			e.logger.Debug("policy enforcer: rule does not exist", "rule", r)
			result = false
		}
	default:
		return false, fmt.Errorf("enforcer: rule must be a string or check.Check, got %T", rule)
	}

	if e.metrics != nil {
		label := "deny"
		if result {
			label = "allow"
		}
		e.metrics.EnforceTotal.WithLabelValues(label).Inc()
	}

	if e.raiseError && !result {
		return result, &PolicyNotAuthorized{Rule: fmt.Sprint(rule), Target: target, Cred: cred}
	}
	return result, nil
}
