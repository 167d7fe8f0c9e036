package authgate

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masabinhok/authgate/broadcast"
	"github.com/masabinhok/authgate/jwtclaims"
	"github.com/masabinhok/authgate/session"
)

// snapshotTTL bounds how long a persisted session hint can outlive its
// cookies. It tracks the refresh token's lifetime.
const snapshotTTL = 7 * 24 * time.Hour

// Gate bundles the built components. Fields are wired together and must be
// treated as immutable; the Store remains the only writer of session state.
type Gate struct {
	Config  Config
	Client  *Client
	Store   *Store
	Bus     *broadcast.Bus
	Decoder *jwtclaims.Decoder
	Policy  *RoutePolicy
	Metrics *Metrics
}

// Authorize is the programmatic form of the route checks for callers that
// have no HTTP layer to redirect through. Public paths always pass; an
// anonymous session yields [ErrNotAuthenticated]; a live session whose role
// the policy rejects yields [ErrRoleDenied]. The session itself is left
// intact either way.
func (g *Gate) Authorize(path string) error {
	if g == nil || g.Store == nil || g.Policy == nil {
		return ErrGateNotReady
	}
	if g.Policy.IsPublic(path) {
		return nil
	}
	user := g.Store.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	if !g.Policy.Allowed(path, user.Role) {
		return fmt.Errorf("%w: role %s on %s", ErrRoleDenied, user.Role, path)
	}
	return nil
}

// Close releases the gate's background resources: the store's bus
// subscription and the bus itself, including its Redis subscription.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	if g.Store != nil {
		g.Store.Close()
	}
	if g.Bus != nil {
		g.Bus.Close()
	}
}

// Builder assembles a [Gate]. Dependencies are injected explicitly at
// construction time — there is no ambient global session reached through
// import side effects.
type Builder struct {
	cfg       Config
	redis     redis.UniversalClient
	logger    *slog.Logger
	hc        *http.Client
	snapshots session.SnapshotStore
	metrics   *Metrics
	policy    *RoutePolicy

	built bool
}

// New returns a Builder with the default configuration. API origin must
// still be supplied through WithConfig before Build.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the configuration. Unset fields fall back to defaults
// at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithRedis attaches a Redis client, enabling cross-process broadcast and
// Redis-backed snapshot persistence. Without it the gate is single-process:
// in-memory snapshots, local-only broadcast.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Nil means slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached when the supplied client has none; the jar is where the server's
// Set-Cookie rotations land, so running without one breaks refresh.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.hc = hc
	return b
}

// WithSnapshotStore overrides snapshot persistence.
func (b *Builder) WithSnapshotStore(store session.SnapshotStore) *Builder {
	b.snapshots = store
	return b
}

// WithMetrics supplies a shared metric set.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithRoutePolicy overrides the default route access policy.
func (b *Builder) WithRoutePolicy(p *RoutePolicy) *Builder {
	b.policy = p
	return b
}

// Build validates the configuration and wires the gate. A Builder may build
// at most once.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := b.cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	hc := b.hc
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	bus := broadcast.New(b.redis, cfg.SnapshotKey+":events", logger)

	snapshots := b.snapshots
	if snapshots == nil {
		if b.redis != nil {
			rs, err := session.NewRedisStore(b.redis, cfg.SnapshotKey, cfg.LegacyCookies, snapshotTTL)
			if err != nil {
				bus.Close()
				return nil, err
			}
			snapshots = rs
		} else {
			snapshots = session.NewMemoryStore()
		}
	}

	decoder, err := jwtclaims.NewDecoder(cfg.VerifyKey)
	if err != nil {
		bus.Close()
		return nil, err
	}

	client, err := newClient(cfg, hc, bus, logger, metrics)
	if err != nil {
		bus.Close()
		return nil, err
	}
	store := newStore(cfg, client, snapshots, bus, logger, metrics)

	policy := b.policy
	if policy == nil {
		policy = DefaultRoutePolicy()
	}

	return &Gate{
		Config:  cfg,
		Client:  client,
		Store:   store,
		Bus:     bus,
		Decoder: decoder,
		Policy:  policy,
		Metrics: metrics,
	}, nil
}
