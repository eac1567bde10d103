/*
Package ports defines the driven-side interfaces of the attempt service.

Adapters (Postgres, SQLite, Redis, in-memory) implement these contracts;
the session Manager consumes them. Following Hexagonal Architecture, nothing
in this package depends on a concrete driver.
*/
package ports
