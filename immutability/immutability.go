// Package immutability implements the Immutability Controller (§4.9): the
// one-way lock that, once triggered and past its grace period,
// forbids further fee-parameter changes except through an explicit
// genesis-declared governance override.
package immutability

import (
	"errors"
	"time"

	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/primitives"
)

// ErrAlreadyLocked is returned by DeployImmutable when locked_at is already
// set (§4.9: "allowed only when locked_at.is_none()").
var ErrAlreadyLocked = errors.New("immutability: already locked")

// ErrEnforced is returned when a mutation attempts to change controller
// state after enforced=true without a valid governance override.
var ErrEnforced = errors.New("immutability: controller is enforced")

// Controller holds the lock state and the digest of the config it protects.
type Controller struct {
	LockedAt     *time.Time
	GraceSeconds uint64
	ConfigHash   ids.ID

	// GovernanceEnabled mirrors the genesis flag from §4.9: "off by
	// default"; only a genesis-declared true permits the emergency
	// override path.
	GovernanceEnabled bool
	GovernanceKey     []byte
}

// New returns a controller with the lock unset, ready to track config
// changes until DeployImmutable is accepted.
func New(governanceEnabled bool, governanceKey []byte) *Controller {
	return &Controller{GovernanceEnabled: governanceEnabled, GovernanceKey: governanceKey}
}

// Enforced implements §4.9's predicate: the lock is set and its grace
// period has elapsed as of now.
func (c *Controller) Enforced(now time.Time) bool {
	if c.LockedAt == nil {
		return false
	}
	return !now.Before(c.LockedAt.Add(time.Duration(c.GraceSeconds) * time.Second))
}

// DeployImmutable starts the grace period and snapshots config_hash over
// configBytes (the canonical encoding of FeeParams and any other
// governed config, per §4.9's config_hash definition).
func (c *Controller) DeployImmutable(hasher primitives.Hasher, now time.Time, graceSeconds uint64, configBytes []byte) error {
	if c.LockedAt != nil {
		return ErrAlreadyLocked
	}
	digest, err := hasher.Hash(configBytes)
	if err != nil {
		return err
	}
	t := now
	c.LockedAt = &t
	c.GraceSeconds = graceSeconds
	c.ConfigHash = digest
	return nil
}

// AuthorizeConfigChange gates a ConfigureFees application per §4.9: allowed
// while not enforced, or while enforced only if GovernanceEnabled is set and
// verifyGovernance accepts governanceSig under the genesis-declared
// GovernanceKey.
func (c *Controller) AuthorizeConfigChange(now time.Time, governanceSig []byte, verifyGovernance func(sig, key []byte) bool) error {
	if !c.Enforced(now) {
		return nil
	}
	if !c.GovernanceEnabled || len(c.GovernanceKey) == 0 {
		return ErrEnforced
	}
	if governanceSig == nil || verifyGovernance == nil || !verifyGovernance(governanceSig, c.GovernanceKey) {
		return ErrEnforced
	}
	return nil
}

// RecordConfigChange updates config_hash after an authorized config change
// has been applied (§4.9: "on apply, updates FeeParams and recomputes
// config_hash").
func (c *Controller) RecordConfigChange(hasher primitives.Hasher, configBytes []byte) error {
	digest, err := hasher.Hash(configBytes)
	if err != nil {
		return err
	}
	c.ConfigHash = digest
	return nil
}
