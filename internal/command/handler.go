package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/reporting"
	"github.com/otus-sbus/sbus/internal/status"
)

// Command is the control-plane command dispatched through the UDS
// admin channel, decoupled from the JSON-RPC envelope so Handle can be
// tested without a socket.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response is the result of handling a Command.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo carries a JSON-RPC style error code and message.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC 2.0 reserved error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// CommandHandler exposes Task's operations to the admin channel without
// requiring an operator to construct raw CCSDS command packets.
type CommandHandler struct {
	task *Task
}

// NewCommandHandler wraps task for admin dispatch.
func NewCommandHandler(task *Task) *CommandHandler {
	return &CommandHandler{task: task}
}

// Handle dispatches cmd by method name, mirroring the fcncodes
// ProcessCmdPipePkt recognizes on the wire so the two surfaces stay in
// lockstep.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	switch cmd.Method {
	case "noop":
		h.task.bus.Counters.CommandCount.Inc()
		return Response{ID: cmd.ID, Result: "ok"}
	case "reset_counters":
		h.task.resetCounters()
		return Response{ID: cmd.ID, Result: "ok"}
	case "stats":
		h.task.bus.Counters.CommandCount.Inc()
		return Response{ID: cmd.ID, Result: h.task.reporter.Statistics(h.task.missionSBMaxPipes)}
	case "write_routing_info":
		return h.dump(cmd, func() (int, error) { return h.task.reporter.DumpRouting(h.task.dumpDir + "/routing.dat") })
	case "write_pipe_info":
		return h.dump(cmd, func() (int, error) { return h.task.reporter.DumpPipes(h.task.dumpDir + "/pipes.dat") })
	case "write_map_info":
		return h.dump(cmd, func() (int, error) { return h.task.reporter.DumpMap(h.task.dumpDir + "/map.dat") })
	case "enable_route":
		return h.toggleRoute(cmd, true)
	case "disable_route":
		return h.toggleRoute(cmd, false)
	case "enable_sub_reporting":
		h.task.reporter.EnableSubReporting()
		h.task.bus.Counters.CommandCount.Inc()
		return Response{ID: cmd.ID, Result: "ok"}
	case "disable_sub_reporting":
		h.task.reporter.DisableSubReporting()
		h.task.bus.Counters.CommandCount.Inc()
		return Response{ID: cmd.ID, Result: "ok"}
	case "send_prev_subs":
		return h.sendPrevSubs(cmd)
	default:
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method %q not found", cmd.Method)}}
	}
}

func (h *CommandHandler) dump(cmd Command, dump func() (int, error)) Response {
	entries, err := dump()
	if err != nil {
		h.task.bus.Counters.CommandErrorCount.Inc()
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternalError, Message: err.Error()}}
	}
	h.task.bus.Counters.CommandCount.Inc()
	return Response{ID: cmd.ID, Result: map[string]interface{}{"entries": entries}}
}

// RouteToggleParams is the JSON body of enable_route/disable_route.
type RouteToggleParams struct {
	MsgID    uint32 `json:"msg_id"`
	PipeName string `json:"pipe_name"`
}

func (h *CommandHandler) toggleRoute(cmd Command, enable bool) Response {
	var params RouteToggleParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInvalidParams, Message: err.Error()}}
	}

	p, ok := h.task.bus.Pipes.GetPipeIDByName(params.PipeName)
	if !ok {
		h.task.bus.Counters.CommandErrorCount.Inc()
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("no such pipe: %s", params.PipeName)}}
	}

	var code status.Code
	if enable {
		code = h.task.bus.EnableRoute(msgid.ID(params.MsgID), p)
	} else {
		code = h.task.bus.DisableRoute(msgid.ID(params.MsgID), p)
	}
	if code != status.Success {
		h.task.bus.Counters.CommandErrorCount.Inc()
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternalError, Message: code.Error()}}
	}
	h.task.bus.Counters.CommandCount.Inc()
	return Response{ID: cmd.ID, Result: "ok"}
}

func (h *CommandHandler) sendPrevSubs(cmd Command) Response {
	h.task.bus.Counters.CommandCount.Inc()
	var segments []reporting.AllSubsSegment
	h.task.reporter.PriorSubscriptions(h.task.subEntriesPerPkt, func(seg reporting.AllSubsSegment) {
		segments = append(segments, seg)
	})
	for i := range segments {
		h.task.publisher.PublishAllSubs(segments[i])
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"segments": segments}}
}
