// ABOUTME: Package documentation for imagery
// ABOUTME: Describes bounded concurrent photo analysis

// Package imagery analyzes place photos with a vision model.
//
// Batches fan out across a bounded worker group under a batch deadline.
// Individual photo failures degrade to error-text descriptions instead of
// failing the batch, so results stay addressable by photo index.
package imagery
