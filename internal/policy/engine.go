package policy

import (
	"container/list"
	"context"
	"crypto/md5"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

//go:embed authz.rego
var defaultModule string

const decisionQuery = "data.fleet.authz.decision"

// Actions understood by the policy.
const (
	ActionList   = "list"
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Engine defines the policy evaluation interface
type Engine interface {
	Evaluate(ctx context.Context, input *Input) (*Decision, error)
	Mode() Mode
}

// Input is what a request is judged on.
type Input struct {
	Role      string `json:"role"`
	Action    string `json:"action"`
	Resource  string `json:"resource"`
	UserID    int64  `json:"user_id,omitempty"`
	CompanyID int64  `json:"company_id,omitempty"`
}

// Decision represents the policy evaluation result
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
	// Denied is true when the policy itself said no, even if dry-run let the request through.
	Denied        bool   `json:"denied,omitempty"`
	PolicyVersion string `json:"policy_version,omitempty"`
}

// OPAEngine implements Engine with an embedded rego module.
type OPAEngine struct {
	config   Config
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	version  string
	cache    *decisionCache
}

// NewOPAEngine compiles the policy. In fail-closed mode a policy that does not
// compile is a startup error; otherwise the engine runs disabled.
func NewOPAEngine(cfg Config, logger *zap.Logger) (*OPAEngine, error) {
	if cfg.Module == "" {
		cfg.Module = defaultModule
	}
	e := &OPAEngine{
		config: cfg,
		logger: logger,
		cache:  newDecisionCache(cfg.CacheSize, cfg.CacheTTL),
	}
	if cfg.Mode == ModeOff {
		return e, nil
	}
	if err := e.load(); err != nil {
		if cfg.FailClosed {
			return nil, fmt.Errorf("failed to load policy in fail-closed mode: %w", err)
		}
		logger.Warn("Failed to load policy, running in fail-open mode", zap.Error(err))
	}
	return e, nil
}

func (e *OPAEngine) load() error {
	compiled, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("authz.rego", e.config.Module),
	).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policy: %w", err)
	}
	e.compiled = &compiled
	e.version = fmt.Sprintf("%x", md5.Sum([]byte(e.config.Module)))[:8]

	recordPolicyVersion(e.version)
	e.logger.Info("Policy compiled",
		zap.String("decision_query", decisionQuery),
		zap.String("version", e.version),
		zap.String("mode", string(e.config.Mode)),
	)
	return nil
}

// Mode returns the configured enforcement mode
func (e *OPAEngine) Mode() Mode { return e.config.Mode }

// Evaluate judges input and applies the enforcement mode.
func (e *OPAEngine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	start := time.Now()
	mode := string(e.config.Mode)

	if e.config.Mode == ModeOff {
		return &Decision{Allow: true, Reason: "policy engine disabled"}, nil
	}
	if e.compiled == nil {
		return &Decision{Allow: !e.config.FailClosed, Reason: "no policy loaded"}, nil
	}

	raw, ok := e.cache.Get(input)
	if ok {
		recordCache(mode, true)
	} else {
		recordCache(mode, false)
		results, err := e.compiled.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			recordError("policy_evaluation", mode)
			e.logger.Error("Policy evaluation failed", zap.Error(err))
			if e.config.FailClosed {
				return &Decision{Allow: false, Reason: "policy evaluation error", Denied: true}, err
			}
			return &Decision{Allow: true, Reason: "policy evaluation error"}, nil
		}
		raw = e.parseResults(results)
		e.cache.Set(input, raw)
	}

	d := e.applyMode(raw, input)
	recordEvaluation(d, mode, time.Since(start).Seconds())
	return d, nil
}

// parseResults reads the {allow, reason} object; anything else is a deny.
func (e *OPAEngine) parseResults(results rego.ResultSet) Decision {
	d := Decision{Allow: false, Reason: "no matching policy rules", PolicyVersion: e.version}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return d
	}
	if m, ok := results[0].Expressions[0].Value.(map[string]interface{}); ok {
		if allow, ok := m["allow"].(bool); ok {
			d.Allow = allow
		}
		if reason, ok := m["reason"].(string); ok {
			d.Reason = reason
		}
	}
	return d
}

func (e *OPAEngine) applyMode(raw Decision, input *Input) *Decision {
	d := raw
	d.Denied = !raw.Allow
	if e.config.Mode != ModeDryRun || raw.Allow {
		return &d
	}
	d.Allow = true
	d.Reason = "DRY-RUN: would have been denied - " + raw.Reason
	e.logger.Info("Dry-run policy evaluation",
		zap.String("role", input.Role),
		zap.String("action", input.Action),
		zap.String("resource", input.Resource),
		zap.Int64("user_id", input.UserID),
		zap.String("original_reason", raw.Reason),
	)
	return &d
}

// --- internal decision cache (simple LRU with TTL) ---

type decisionCache struct {
	cap  int
	ttl  time.Duration
	mu   sync.Mutex
	list *list.List               // MRU at front
	m    map[string]*list.Element // key -> element
	now  func() time.Time
}

type cacheEntry struct {
	key       string
	expiresAt time.Time
	decision  Decision
}

func newDecisionCache(cap int, ttl time.Duration) *decisionCache {
	if cap <= 0 {
		cap = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &decisionCache{
		cap:  cap,
		ttl:  ttl,
		list: list.New(),
		m:    make(map[string]*list.Element),
		now:  time.Now,
	}
}

// The policy only reads role, action and resource.
func (c *decisionCache) makeKey(input *Input) string {
	return input.Role + "|" + input.Action + "|" + input.Resource
}

func (c *decisionCache) Get(input *Input) (Decision, bool) {
	key := c.makeKey(input)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		ce := el.Value.(cacheEntry)
		if ce.expiresAt.After(c.now()) {
			c.list.MoveToFront(el)
			return ce.decision, true
		}
		c.list.Remove(el)
		delete(c.m, key)
	}
	return Decision{}, false
}

func (c *decisionCache) Set(input *Input, d Decision) {
	key := c.makeKey(input)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{key: key, expiresAt: c.now().Add(c.ttl), decision: d}
	if el, ok := c.m[key]; ok {
		el.Value = entry
		c.list.MoveToFront(el)
		return
	}
	c.m[key] = c.list.PushFront(entry)
	if c.list.Len() > c.cap {
		lru := c.list.Back()
		delete(c.m, lru.Value.(cacheEntry).key)
		c.list.Remove(lru)
	}
	policyCacheSize.Set(float64(c.list.Len()))
}

func (c *decisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
