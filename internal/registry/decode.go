package registry

import (
	"encoding/json"

	"github.com/haroldsh/fulcrum/internal/bus"
)

func decodeEvent(ev bus.Event, v interface{}) error {
	return json.Unmarshal(ev.Payload, v)
}
