// Package engine executes queries against an asynchronous execution client
// and shapes the rows it returns to the caller's declared cardinality.
//
// ARCHITECTURE:
//
// One call, one dispatch:
// Each call normalizes its query descriptor, validates the mask, formats
// values, and dispatches to the Client at most once. There are no retries,
// no reconnection and no speculative attempts.
//
// Call Processing Flow:
// 1. query.Normalize reduces the descriptor to text and parameters
// 2. result.ValidateMask checks the mask (skipped for raw-result calls)
// 3. the Formatter substitutes values unless native formatting applies
// 4. the Query hook runs
// 5. the Client executes the statement; the last result set is kept
// 6. the Receive hook runs when rows were returned
// 7. result.Shape produces the Outcome
//
// Settlement:
// Every call settles exactly once. A call owns a single error cell; the
// first error recorded at any stage wins and short-circuits every later
// stage. The Error hook fires once per failed call, after internal panic
// wrappers are unwrapped.
//
// Cancellation:
// A context cancelled before the Query hook fails the call with ctx.Err()
// and the Client is never called. Once dispatched a call cannot be
// cancelled: the Client receives a context detached from caller
// cancellation (context values are kept). Callers that stop waiting
// use Future.WaitContext; the call still completes and settles in the
// background. Time limits belong to the Client.
//
// Ordering across independent calls is whatever the Client provides; the
// engine holds no locks or queues of its own.
package engine
