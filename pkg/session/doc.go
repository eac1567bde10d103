/*
Package session orchestrates the durable store and the ephemeral cache for
in-progress attempts.

The Manager is the only writer of attempt state. It enforces the optimistic
concurrency protocol (version token compared at write time), keeps the cache
strictly behind the durable store (cache-aside), and runs one background
keep-alive loop per active session so external sweepers can tell working
sessions from orphaned ones.

The Manager holds no authoritative in-memory copy of any session; the durable
store's version column is the single serialization point, so multiple Manager
replicas can run against the same store without extra coordination.
*/
package session
