package queue

import sharedqueue "commentary/shared/queue"

// Publisher is an alias to the shared publisher implementation.
type Publisher = sharedqueue.Publisher

// NewPublisher creates a new publisher using the shared implementation.
var NewPublisher = sharedqueue.NewPublisher

// RouteRender and RouteCleanup re-export the shared routing keys.
const (
	RouteRender  = sharedqueue.RouteRender
	RouteCleanup = sharedqueue.RouteCleanup
)
