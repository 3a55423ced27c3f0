package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/presence-gateway/internal/auth"
	"github.com/Tyrowin/presence-gateway/internal/presence"
)

// admission is the result of a handshake: either a registered record, or a
// rejection outcome with its cause.
type admission struct {
	record  presence.Record
	outcome string
	err     error
}

func (a admission) admitted() bool {
	return a.err == nil
}

func rejected(outcome string, err error) admission {
	return admission{outcome: outcome, err: err}
}

// authenticate extracts and verifies the token, then registers connID. It
// runs on the connection's own goroutine before any pump exists, so nothing
// the peer sends is processed until it returns. A rejected handshake never
// leaves a record behind.
func (g *Gateway) authenticate(ctx context.Context, r *http.Request, connID string) admission {
	token, err := auth.ExtractToken(r, g.cfg.AuthHeader)
	if err != nil {
		return rejected(outcomeMissingToken, err)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return rejected(outcomeMissingToken, err)
		}
		return rejected(outcomeInvalidToken, err)
	}

	if _, err := g.registry.Register(ctx, connID, claims.SubjectID()); err != nil {
		if errors.Is(err, presence.ErrIdentityNotFound) {
			return rejected(outcomeIdentityNotFound, err)
		}
		return rejected(outcomeInternal, err)
	}

	record, ok := g.registry.Lookup(connID)
	if !ok {
		return rejected(outcomeInternal, presence.ErrConnectionNotRegistered)
	}

	return admission{record: record, outcome: outcomeAdmitted}
}

// rejectConnection closes an upgraded connection that never became
// authenticated. The peer only sees a policy-violation close.
func (g *Gateway) rejectConnection(conn *websocket.Conn, connID, remoteAddr string, adm admission) {
	g.metrics.handshakes.WithLabelValues(adm.outcome).Inc()
	g.logger.Warn().
		Err(adm.err).
		Str("conn_id", connID).
		Str("remote_addr", remoteAddr).
		Str("outcome", adm.outcome).
		Msg("Handshake rejected")

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		g.logger.Debug().Err(err).Str("conn_id", connID).Msg("Error writing rejection close frame")
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		g.logger.Debug().Err(err).Str("conn_id", connID).Msg("Error closing rejected connection")
	}
}
