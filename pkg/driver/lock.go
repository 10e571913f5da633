/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/types"
)

// LockHolder returns the current lock owner, NoOwner if free.
func (d *Driver) LockHolder() types.LockOwner {
	return d.lockHolder
}

// AcquireLock suspends the calling task until the driver's lock is free
// and the caller is at the head of the waiter queue, then takes the lock.
// Grants are strictly first-acquired order. Acquiring a lock already held
// or already awaited by the same owner is an ownership violation.
func (d *Driver) AcquireLock(ctx *sched.TaskCtx, owner types.LockOwner) error {
	if owner == types.NoOwner {
		return errors.WithMessage(ErrLockViolation, "empty lock owner")
	}
	if d.lockHolder == owner {
		return errors.WithMessagef(ErrLockViolation,
			"owner %s acquiring lock on driver %s twice without release", owner, d.id)
	}
	for _, w := range d.lockWaiters {
		if w == owner {
			return errors.WithMessagef(ErrLockViolation,
				"owner %s already waiting for lock on driver %s", owner, d.id)
		}
	}

	d.lockWaiters = append(d.lockWaiters, owner)
	err := ctx.WaitLock(string(d.id), func() bool {
		return d.lockHolder == types.NoOwner && len(d.lockWaiters) > 0 && d.lockWaiters[0] == owner
	})
	if err != nil {
		// Cancelled while waiting; withdraw so later waiters can advance.
		d.removeWaiter(owner)
		return err
	}

	d.lockWaiters = d.lockWaiters[1:]
	d.lockHolder = owner
	d.logger.Debug("lock acquired", zap.String("owner", string(owner)))
	return nil
}

// ReleaseLock releases the driver's lock. Releasing a lock the caller
// does not hold is an ownership violation.
func (d *Driver) ReleaseLock(owner types.LockOwner) error {
	if d.lockHolder != owner {
		return errors.WithMessagef(ErrLockViolation,
			"owner %s releasing lock on driver %s held by %q", owner, d.id, d.lockHolder)
	}
	d.lockHolder = types.NoOwner
	d.logger.Debug("lock released", zap.String("owner", string(owner)))
	return nil
}

func (d *Driver) removeWaiter(owner types.LockOwner) {
	for i, w := range d.lockWaiters {
		if w == owner {
			d.lockWaiters = append(d.lockWaiters[:i], d.lockWaiters[i+1:]...)
			return
		}
	}
}
