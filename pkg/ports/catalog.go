package ports

import "context"

// ActivityCatalog is the read-only quiz-content collaborator.
//
// The catalog itself lives outside this service; the Manager only needs to
// know whether an activity id refers to real content before starting an
// attempt against it.
type ActivityCatalog interface {
	// ActivityExists reports whether the catalog knows the activity id.
	ActivityExists(ctx context.Context, activityID string) (bool, error)
}
