package sync

import (
	"encoding/json"
	"time"

	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
)

// timestampPrecision точность сравнения времени изменения сторон
const timestampPrecision = time.Millisecond

// Decision выбранный исход конфликта
type Decision struct {
	Resolution offline.Resolution
	Payload    json.RawMessage
}

// Decide пытается разрешить конфликт автоматически. ok == false означает,
// что конфликт остается пользователю.
func Decide(strategy Strategy, c offline.Conflict) (Decision, bool) {
	switch strategy {
	case StrategyManual:
		return Decision{}, false
	case StrategyLocal:
		return Decision{Resolution: offline.ResolutionLocal, Payload: c.LocalPayload}, true
	case StrategyRemote:
		return Decision{Resolution: offline.ResolutionRemote, Payload: c.RemotePayload}, true
	}

	local := c.LocalModified.Truncate(timestampPrecision)
	remote := c.RemoteModified.Truncate(timestampPrecision)

	if !local.IsZero() && !remote.IsZero() && !local.Equal(remote) {
		if local.After(remote) {
			return Decision{Resolution: offline.ResolutionLocal, Payload: c.LocalPayload}, true
		}
		return Decision{Resolution: offline.ResolutionRemote, Payload: c.RemotePayload}, true
	}

	merged, err := payload.Merge(c.LocalPayload, c.RemotePayload)
	if err != nil {
		return Decision{}, false
	}

	return Decision{Resolution: offline.ResolutionMerged, Payload: merged}, true
}
