package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key prefixes for primary entity storage.
const (
	prefixRegistration = "history:reg:" // + client ID
	prefixMessage      = "history:msg:" // + compositeKey(client ID, topic, message ID)
)

// Key prefixes for sorted set indexes. Both hold log members with score 0 so
// that lexicographic range queries follow log order.
const (
	zTopicLog = "history:z:log:"    // + topic
	zOrigin   = "history:z:origin:" // + compositeKey(topic, message ID)
)

// memberSep separates the fields of a log member. It sorts below every other
// byte, so a shorter field sorts before any extension of it.
const memberSep = "\x00"

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// compositeKey joins parts into a key suffix that no other parts produce:
// every part but the last is length-prefixed, and the last runs to the end.
func compositeKey(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i < len(parts)-1 {
			b.WriteString(strconv.Itoa(len(p)))
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

func messageKey(clientID, topic, messageID string) string {
	return prefixMessage + compositeKey(clientID, topic, messageID)
}

func originKey(topic, messageID string) string {
	return zOrigin + compositeKey(topic, messageID)
}

// logMember encodes a log position. The timestamp is zero-padded nanoseconds
// so that byte order matches time order.
func logMember(ts time.Time, messageID, clientID string) string {
	return fmt.Sprintf("%020d", ts.UnixNano()) + memberSep + messageID + memberSep + clientID
}

// parseLogMember is the inverse of logMember.
func parseLogMember(member string) (ts time.Time, messageID, clientID string, err error) {
	parts := strings.SplitN(member, memberSep, 3)
	if len(parts) != 3 {
		return time.Time{}, "", "", fmt.Errorf("malformed log member %q", member)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", "", fmt.Errorf("malformed log member timestamp %q: %w", parts[0], err)
	}
	return time.Unix(0, nanos).UTC(), parts[1], parts[2], nil
}
