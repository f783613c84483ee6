package rpc

import "github.com/loykin/rtmon/internal/task"

// Method names served on the control socket.
const (
	MethodSet    = "rtmon.set"
	MethodCancel = "rtmon.cancel"
	MethodWait   = "rtmon.wait"
	MethodList   = "rtmon.list"
	MethodStatus = "rtmon.status"
)

// SetParams is the input for rtmon.set. PID 0 means the calling process.
type SetParams struct {
	PID int32 `json:"pid"`
	C   int32 `json:"c"`
	T   int32 `json:"t"`
}

// PIDParams is the input for rtmon.cancel and rtmon.status. PID 0 means
// the calling process.
type PIDParams struct {
	PID int32 `json:"pid"`
}

// WaitResult is the response for rtmon.wait.
type WaitResult struct {
	Period uint64 `json:"period"`
}

// ListResult is the response for rtmon.list.
type ListResult struct {
	Tasks []task.Info `json:"tasks"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}
