package connpool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// OriginStats is the per-origin slice of spec §6's "Pool statistics
// snapshot".
type OriginStats struct {
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiters int `json:"waiters"`
}

// Stats is the full snapshot PoolManager.Stats returns: global counters
// plus a per-origin breakdown.
type Stats struct {
	Opened  uint64                 `json:"opened"`
	Closed  uint64                 `json:"closed"`
	InUse   int                    `json:"in_use"`
	Origins map[string]OriginStats `json:"origins"`
}

// String renders a one-line human-readable summary, in the spirit of the
// teacher's terse lifecycle logging.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "opened=%d closed=%d in_use=%d origins=%d", s.Opened, s.Closed, s.InUse, len(s.Origins))

	keys := make([]string, 0, len(s.Origins))
	for k := range s.Origins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o := s.Origins[k]
		fmt.Fprintf(&b, " [%s idle=%d in_use=%d waiters=%d]", k, o.Idle, o.InUse, o.Waiters)
	}
	return b.String()
}

// JSON marshals the snapshot for programmatic consumption.
func (s Stats) JSON() ([]byte, error) {
	return json.Marshal(s)
}
