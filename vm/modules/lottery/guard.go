package lottery

import "github.com/ddlab/luckchain/core"

// acquireGuard takes the persisted reentrancy latch. The latch is a single
// boolean: held while a mutating handler is mid-flight, false otherwise. The
// returned release function must run on every exit path; callers defer it
// immediately so the latch can never be left set, whether the handler
// succeeds or fails. (On failure the executor also reverts the snapshot, but
// the latch is released explicitly rather than relying on the rollback.)
func acquireGuard(state core.State) (release func(), err error) {
	held, err := state.GetGuard()
	if err != nil {
		return nil, err
	}
	if held {
		return nil, ErrReentrancyDetected
	}
	if err := state.SetGuard(true); err != nil {
		return nil, err
	}
	return func() { _ = state.SetGuard(false) }, nil
}
