/*
Package host runs the registry for transports.

The registry core trusts whatever caller identity and time it is handed and
does no locking. Host is the runtime around it:

  - it serializes every call, so at most one operation observes or changes
    state at a time;
  - it stamps each call with the caller identity supplied by the transport
    and the current time in Unix nanoseconds, never going backwards;
  - it loads the snapshot from an interfaces.StateBackend at startup and
    saves a new snapshot after every successful mutation, before returning.

A mutation whose snapshot cannot be saved is rolled back and fails with
ErrPersistFailed, so the stored state and the served state never diverge.

Reads on an uninitialized registry fail with interfaces.ErrNotInitialized.
*/
package host
