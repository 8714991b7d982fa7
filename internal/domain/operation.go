package domain

import "context"

// OperationRequest is the input handed to an external generative operation.
type OperationRequest struct {
	JobID string
	Stage Stage
	Input map[string]any
}

// OperationState is the outcome of an invoke or poll call. When Done is false
// Handle identifies the in-flight operation; when Done is true OutputURL holds
// the produced artifact.
type OperationState struct {
	Done      bool
	Handle    string
	OutputURL string
}

// Operation is the uniform contract of the long-running external backends.
// Poll returns *UpstreamError for a terminal failure; any other error is
// treated as transient.
type Operation interface {
	Invoke(ctx context.Context, req OperationRequest) (OperationState, error)
	Poll(ctx context.Context, handle string) (OperationState, error)
}
