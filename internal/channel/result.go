package channel

// ReadQuantum bounds the bytes returned by one Receive.
const ReadQuantum = 4096

// Kind discriminates Receive outcomes that are not faults.
type Kind int

const (
	// KindData carries at least one byte.
	KindData Kind = iota
	// KindTimeout means nothing arrived within the receive timeout; the
	// channel is still usable.
	KindTimeout
	// KindClosed means the peer closed the stream or the channel was closed
	// locally. No further data will arrive.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result is one Receive outcome.
type Result struct {
	Kind Kind
	Data []byte
}

func dataResult(p []byte) Result { return Result{Kind: KindData, Data: p} }

var (
	timeoutResult = Result{Kind: KindTimeout}
	closedResult  = Result{Kind: KindClosed}
)
