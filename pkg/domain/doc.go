/*
Package domain contains the core domain models for the attempt service.

It defines the Attempt record (one subject's in-progress pass through one
activity), its closed status variant, and the error taxonomy shared by the
stores and the session manager. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Attempt: The versioned record of one attempt (cursor, responses, budget).
  - Status: Closed set of lifecycle states; terminal states reject mutation.
  - Summary: The read-only listing projection of an attempt.
*/
package domain
