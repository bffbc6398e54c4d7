package leave

import (
	"github.com/warp/leave-engine/generic"
)

// DetectOverlap returns the first request in requests that conflicts with span
// for userID. A conflict is another request of the same user that is neither
// rejected nor cancelled and whose date range shares at least one day with
// span. Time of day is ignored, so two partial-day requests on the same date
// always conflict.
func DetectOverlap(requests []Request, userID generic.UserID, span generic.Span, excludeID generic.RequestID) (Request, bool) {
	for _, r := range requests {
		if r.UserID != userID || r.Status.Terminal() {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if span.OverlapsDates(r.Span) {
			return r, true
		}
	}
	return Request{}, false
}
