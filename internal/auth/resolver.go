package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

// UserLookup fetches a platform user by phone number.
type UserLookup interface {
	GetUser(ctx context.Context, phone string) *backend.Response
}

// Resolver derives the Principal behind a sender. Owner and admin come from
// the gate's configured sets; every other role comes from the backend user
// record, cached in storage for the configured TTL.
type Resolver struct {
	gate    *Gate
	users   UserLookup
	cache   storage.RoleRepository
	ttl     time.Duration
	group   singleflight.Group
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. cache and m may be nil.
func NewResolver(gate *Gate, users UserLookup, cache storage.RoleRepository, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		gate:    gate,
		users:   users,
		cache:   cache,
		ttl:     ttl,
		logger:  log.WithModule("auth"),
		metrics: m,
	}
}

type lookup struct {
	role       Role
	name       string
	merchantID string
	cacheable  bool
}

// Resolve returns the principal for a normalized sender phone number. It
// never fails: an unreachable backend yields a customer principal.
func (r *Resolver) Resolve(ctx context.Context, userID string, isGroup bool) Principal {
	p := Principal{UserID: userID, IsGroupMember: isGroup}
	if userID == "" {
		p.Role = RoleAnonymous
		return p
	}
	switch {
	case r.gate.IsOwner(userID):
		p.Role = RoleOwner
	case r.gate.IsAdmin(userID):
		p.Role = RoleAdmin
	}

	res := r.lookup(ctx, userID)
	p.Name = res.name
	p.MerchantID = res.merchantID
	if p.Role == RoleAnonymous {
		// A backend claim of owner or admin never grants those roles
		p.Role = min(res.role, RoleMerchant)
	}
	return p
}

func (r *Resolver) lookup(ctx context.Context, userID string) lookup {
	if r.cache != nil {
		cached, err := r.cache.GetCachedRole(ctx, userID, r.ttl)
		if err == nil {
			return lookup{role: ParseRole(cached.Role), name: cached.Name, merchantID: cached.MerchantID}
		}
		if !domerrors.IsNotFound(err) {
			r.logger.WithError(err).Warnf("Role cache read failed")
		}
	}

	v, _, shared := r.group.Do(userID, func() (any, error) {
		return r.fetch(ctx, userID), nil
	})
	if shared && r.metrics != nil {
		r.metrics.RecordSingleflightDedup("user_lookup")
	}
	res := v.(lookup)

	if res.cacheable && r.cache != nil {
		err := r.cache.SaveRole(ctx, &storage.CachedRole{
			UserID:     userID,
			Role:       res.role.String(),
			Name:       res.name,
			MerchantID: res.merchantID,
		})
		if err != nil {
			r.logger.WithError(err).Warnf("Role cache write failed")
		}
	}
	return res
}

func (r *Resolver) fetch(ctx context.Context, userID string) lookup {
	resp := r.users.GetUser(ctx, userID)
	switch {
	case resp.Success:
		var u backend.User
		if err := resp.Decode(&u); err != nil {
			r.logger.WithError(err).Warnf("Malformed user record")
			return lookup{role: RoleCustomer}
		}
		role := ParseRole(u.Role)
		if role == RoleAnonymous {
			role = RoleCustomer
		}
		return lookup{role: role, name: u.Name, merchantID: u.MerchantID, cacheable: true}
	case resp.NotFound():
		// Unregistered numbers can still browse
		return lookup{role: RoleCustomer, cacheable: true}
	default:
		if !errors.Is(resp.Err, context.Canceled) {
			r.logger.WithError(resp.Err).Warnf("User lookup failed, treating sender as customer")
		}
		return lookup{role: RoleCustomer}
	}
}
