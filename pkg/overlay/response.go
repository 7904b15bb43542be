package overlay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
)

// sendOKResponse builds and delivers a success response to a locally
// dispatched request's sender, copying its matchtag and route stack.
func (o *Overlay) sendOKResponse(sender string, req *message.Message, body []byte, streaming bool) {
	o.Reply(sender, req, body, 0, streaming)
}

func (o *Overlay) sendErrorResponse(sender string, req *message.Message, cause error) {
	errnum := uint32(message.CodeProtocol)
	var coder interface{ Code() message.Code }
	if errors.As(cause, &coder) {
		errnum = uint32(coder.Code())
	}
	o.Reply(sender, req, nil, errnum, false)
}

// Reply builds and delivers a response to req's sender with the given
// payload and error number, copying req's matchtag and route stack so the
// reply retraces the request's path. Implements the scratchpad's
// scratchpad.Replier contract, so the scratchpad package can answer its own
// callers through the same overlay without depending on it directly.
func (o *Overlay) Reply(sender string, req *message.Message, body []byte, errnum uint32, streaming bool) {
	resp, err := message.New(message.TypeResponse)
	if err != nil {
		return
	}
	tag, _ := req.Matchtag()
	_ = resp.SetMatchtag(tag)
	_ = resp.SetErrnum(errnum)
	if len(body) > 0 {
		if err := resp.SetPayloadBytes(body); err != nil {
			o.log.Warn("failed to attach response payload", zap.Error(err))
		}
	}
	if streaming {
		if err := resp.SetFlag(message.FlagStreaming, true); err != nil {
			o.log.Warn("failed to set streaming flag on response", zap.Error(err))
		}
	}
	o.replyToSender(sender, req, resp)
}

// replyToSender copies req's route stack onto resp (so the reply retraces
// the request's path) and hands it to the delivery path: a direct local
// reply if the overlay has one wired, otherwise ordinary tree routing.
func (o *Overlay) replyToSender(sender string, req *message.Message, resp *message.Message) {
	if req.RouteStackEnabled() {
		resp.SetRouteStackEnabled(true)
		for _, id := range req.Routes() {
			_ = resp.PushRoute(id)
		}
	}
	if err := o.deliverResponseTo(sender, resp); err != nil {
		o.log.Warn("failed to deliver response", zap.Error(err))
	}
}
