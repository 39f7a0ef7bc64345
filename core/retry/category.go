package retry

// Category buckets an Outcome for the purpose of retry decisions (spec
// §4.D). Classification is a pure function of the Outcome; the decision
// of whether a given Category is actually retried lives in Engine.Decide.
type Category int

const (
	CategoryNone Category = iota
	CategoryTransient
	CategoryTimeout
	CategoryServer
	CategoryRateLimit
	CategoryClient
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryTimeout:
		return "timeout"
	case CategoryServer:
		return "server"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryClient:
		return "client"
	case CategoryProtocol:
		return "protocol"
	default:
		return "none"
	}
}
