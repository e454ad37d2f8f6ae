// Package store defines the persistence interfaces of the pipeline:
// note storage with the lock primitive, per-user usage accounting, and
// transaction helpers. Implementations live under internal/platform.
package store
