package client

import (
	"go.uber.org/zap"

	"swap-messenger/protocol"
)

// dispatch classifies one post-auth frame. Malformed traffic at either layer
// is logged and dropped; an unrelated or broken message must never take the
// connection down.
func (m *Messenger) dispatch(data []byte) {
	env, err := protocol.DecodeEnvelope(m.cdc, data)
	if err != nil {
		m.logger.Debug("malformed envelope dropped", zap.Error(err))
		return
	}

	kind, req, resp, err := protocol.Classify(env.Message)
	if err != nil {
		m.logger.Debug("malformed rpc message dropped", zap.Error(err))
		return
	}

	switch kind {
	case protocol.KindRequest:
		handler, ok := m.cfg.Methods[req.Method]
		if !ok {
			// No error response goes back, unknown methods are ignored.
			m.logger.Debug("no handler registered for method",
				zap.String("method", req.Method), zap.String("sender", env.Sender))
			return
		}
		handler(env.Sender, req)
	case protocol.KindResponse:
		m.resolve(resp)
	default:
		m.logger.Debug("message with neither method nor id dropped")
	}
}
