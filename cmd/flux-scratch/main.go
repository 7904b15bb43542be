// Command flux-scratch is an in-process demonstration client for the
// scratchpad's load-linked/store-conditional protocol: it drives a
// scratchpad.Scratchpad directly through a dispatch.Registry (the same
// entry point a broker's overlay uses) and prints each response,
// without requiring a running flux-broker process.
//
// Usage:
//
//	flux-scratch ll <key>
//	flux-scratch sc <key> <version> <json-value>
//	flux-scratch sc-stream <key> <version> <json-value>
//	flux-scratch sc-retry <matchtag> <version> <json-value>
//	flux-scratch delete <key>
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/scratchpad"
)

// printingReplier satisfies scratchpad.Replier by printing every response
// to stdout instead of routing it across a network.
type printingReplier struct {
	mu   sync.Mutex
	last []byte
}

func (p *printingReplier) Reply(sender string, req *message.Message, body []byte, errnum uint32, streaming bool) {
	tag, _ := req.Matchtag()
	p.mu.Lock()
	p.last = body
	p.mu.Unlock()
	if errnum != 0 {
		fmt.Printf("<- error=%d streaming=%v matchtag=%d\n", errnum, streaming, tag)
		return
	}
	fmt.Printf("<- %s streaming=%v matchtag=%d\n", bodyOrEmpty(body), streaming, tag)
}

func bodyOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: flux-scratch <ll|sc|sc-stream|sc-retry|delete> ...")
		return 2
	}

	disp := dispatch.NewRegistry()
	store := scratchpad.NewStore()
	reply := &printingReplier{}
	scratchpad.New(disp, store, reply, nil)

	cmd, rest := args[0], args[1:]
	req, err := buildRequest(cmd, rest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Printf("-> %s %s\n", cmd, bodyOrEmpty(mustPayload(req)))
	if err := disp.Dispatch("flux-scratch", req); err != nil {
		fmt.Fprintln(os.Stderr, "dispatch failed:", err)
		return 1
	}
	return 0
}

func mustPayload(m *message.Message) []byte {
	b, _ := m.Payload()
	return b
}

var matchtagCounter uint32 = 1

func nextMatchtag() uint32 {
	matchtagCounter++
	return matchtagCounter - 1
}

func buildRequest(cmd string, args []string) (*message.Message, error) {
	switch cmd {
	case "ll":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: flux-scratch ll <key>")
		}
		return newRequest("scratchpad.ll", false, false, map[string]any{"key": args[0]})
	case "sc":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: flux-scratch sc <key> <version> <json-value>")
		}
		return scRequestMsg("scratchpad.sc", false, args)
	case "sc-stream":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: flux-scratch sc-stream <key> <version> <json-value>")
		}
		return scRequestMsg("scratchpad.sc-stream", true, args)
	case "sc-retry":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: flux-scratch sc-retry <matchtag> <version> <json-value>")
		}
		matchtag, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid matchtag: %w", err)
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid version: %w", err)
		}
		return newRequest("scratchpad.sc-retry", false, true, map[string]any{
			"matchtag": uint32(matchtag),
			"version":  uint32(version),
			"data":     json.RawMessage(args[2]),
		})
	case "delete":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: flux-scratch delete <key>")
		}
		return newRequest("scratchpad.delete", false, true, map[string]any{"key": args[0]})
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func scRequestMsg(topic string, streaming bool, args []string) (*message.Message, error) {
	version, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}
	return newRequest(topic, streaming, false, map[string]any{
		"key":     args[0],
		"version": uint32(version),
		"data":    json.RawMessage(args[2]),
	})
}

func newRequest(topic string, streaming, noResponse bool, body any) (*message.Message, error) {
	m, err := message.New(message.TypeRequest)
	if err != nil {
		return nil, err
	}
	m.SetTopic(topic)
	if err := m.SetMatchtag(nextMatchtag()); err != nil {
		return nil, err
	}
	m.SetRolemask(message.RoleUser)
	if streaming {
		if err := m.SetFlag(message.FlagStreaming, true); err != nil {
			return nil, err
		}
	}
	if noResponse {
		if err := m.SetFlag(message.FlagNoResponse, true); err != nil {
			return nil, err
		}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if err := m.SetPayloadBytes(b); err != nil {
		return nil, err
	}
	return m, nil
}
