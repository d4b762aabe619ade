package api

import (
	"net"
	"net/http"
	"time"

	"github.com/xraph/history"
	"github.com/xraph/history/message"
)

// maxRateKeys bounds the limiter before idle buckets are pruned.
const maxRateKeys = 10_000

func (hd *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	topic := queryParam(r, "topic")
	if hd.limiter.Len() > maxRateKeys {
		hd.limiter.Prune(time.Minute)
	}
	if !hd.limiter.Allow(rateKey(r), hd.cfg.HistoryRateLimit) {
		writeFailure(w, http.StatusTooManyRequests, nameRateLimited, "too many history requests")
		return
	}
	if _, ok := hd.authenticate(w, r); !ok {
		return
	}

	count, ok := queryInt(r, "messageCount", 0)
	if !ok {
		writeFailure(w, http.StatusBadRequest, nameBadRequest, "messageCount must be an integer")
		return
	}

	page, err := hd.history.Messages(r.Context(), history.Query{
		Topic:     topic,
		OriginID:  queryParam(r, "originId"),
		Count:     count,
		Direction: message.Direction(queryParam(r, "direction")),
	})
	if err != nil {
		hd.writeError(w, r, err)
		return
	}
	writeSuccess(w, page)
}

// rateKey buckets history queries by remote host.
func rateKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
