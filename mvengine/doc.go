// Package mvengine contains the [Engine], which owns all map vote state.
//
// Every mutation of the vote session, the nomination registry,
// and the RTV aggregator happens on the engine's single kernel goroutine.
// Player commands, host events, countdown ticks, grace timers,
// and results of background work all arrive at the kernel as channel values,
// so no vote state is protected by locks.
//
// Work that may block on the network (pool refreshes, nomination resolution,
// and the final map change) runs on background goroutines
// which report back to the kernel through channels.
//
// Notices for players are emitted through a [Notifier].
// Notifier implementations must not block for long,
// as they are called directly from the kernel.
package mvengine
