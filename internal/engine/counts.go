package engine

import "strings"

// countMessage is an accepted occupancy counter update.
type countMessage struct {
	Source string // camera or zone name
	Object string // object label, or "all"
	Count  int
}

// classifyCount cheaply rejects everything on the shared topic namespace
// that is not an occupancy counter: motion on/off strings, JSON state
// blobs, snapshot bytes. The payload must be 1-3 decimal digits and the
// topic exactly three segments (prefix/source/object). This runs before
// any topology lookup so the high-volume non-count traffic costs one scan
// and one split, nothing more.
func classifyCount(topic string, payload []byte) (countMessage, bool) {
	if len(payload) == 0 || len(payload) > 3 {
		return countMessage{}, false
	}
	count := 0
	for _, b := range payload {
		if b < '0' || b > '9' {
			return countMessage{}, false
		}
		count = count*10 + int(b-'0')
	}

	first := strings.IndexByte(topic, '/')
	if first < 0 {
		return countMessage{}, false
	}
	second := strings.IndexByte(topic[first+1:], '/')
	if second < 0 {
		return countMessage{}, false
	}
	second += first + 1
	if strings.IndexByte(topic[second+1:], '/') >= 0 {
		return countMessage{}, false
	}

	source := topic[first+1 : second]
	object := topic[second+1:]
	if source == "" || object == "" {
		return countMessage{}, false
	}

	return countMessage{Source: source, Object: object, Count: count}, true
}
