package transport

import (
	"strconv"
	"strings"
)

// ParseChatTarget parses "<chat_id>" or "<chat_id>:<thread_id>". ok is false
// for anything else, including an empty string.
func ParseChatTarget(s string) (to ChatTarget, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, false
	}
	idPart, threadPart, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, false
	}
	to = ChatTarget{ChatID: id}
	if hasThread {
		th, err := strconv.Atoi(threadPart)
		if err != nil || th < 0 {
			return ChatTarget{}, false
		}
		to.ThreadID = th
	}
	return to, true
}
