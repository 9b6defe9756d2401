// Package lifecycle models the orchestration events delivered to the
// operator and the three-valued outcome a handler reports back to the
// event-delivery loop.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies a lifecycle event delivered by the machine agent.
type Kind string

const (
	KindInstall              Kind = "install"
	KindConfigChanged        Kind = "config-changed"
	KindRemove               Kind = "remove"
	KindBessdPebbleReady     Kind = "bessd-pebble-ready"
	KindRoutectlPebbleReady  Kind = "routectl-pebble-ready"
	KindWebPebbleReady       Kind = "web-pebble-ready"
	KindPFCPAgentPebbleReady Kind = "pfcp-agent-pebble-ready"
	KindUPFRelationJoined    Kind = "upf-relation-joined"
)

// Result tells the event-delivery loop what to do with the event that was
// just handled. There is no in-process retry: WaitRetryable asks the loop to
// re-deliver the same event later unchanged.
type Result int

const (
	// Completed means the handler ran to the end of its side effects.
	Completed Result = iota

	// WaitRetryable means a precondition was unmet and the event must be
	// re-delivered later unchanged.
	WaitRetryable

	// WaitTerminal means a precondition was unmet but a different event is
	// expected to satisfy it; re-delivering this one would busy-loop.
	WaitTerminal
)

// String returns the result name used in logs and exit-code mapping.
func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case WaitRetryable:
		return "wait-retryable"
	case WaitTerminal:
		return "wait-terminal"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// HandlerFunc handles one lifecycle event invocation to completion.
type HandlerFunc func(ctx context.Context) (Result, error)

// Dispatcher is an explicit event-kind to handler table, built once at
// process start.
type Dispatcher map[Kind]HandlerFunc

// Dispatch runs the handler registered for kind. Unknown kinds complete
// without side effects so the agent can deliver events the operator does not
// observe.
func (d Dispatcher) Dispatch(ctx context.Context, kind Kind) (Result, error) {
	handler, ok := d[kind]
	if !ok {
		return Completed, nil
	}
	return handler(ctx)
}

// KindFromHook maps an agent dispatch path such as "hooks/install" or
// "hooks/bessd-pebble-ready" to an event kind.
func KindFromHook(path string) (Kind, error) {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("empty hook path %q", path)
	}
	switch k := Kind(name); k {
	case KindInstall, KindConfigChanged, KindRemove,
		KindBessdPebbleReady, KindRoutectlPebbleReady,
		KindWebPebbleReady, KindPFCPAgentPebbleReady,
		KindUPFRelationJoined:
		return k, nil
	default:
		return Kind(name), nil
	}
}
