package models

import (
	"slices"
	"strings"
)

const dmSeparator = "_"

// ChannelIDPrefix marks server-issued channel ids so they never collide with
// DM room ids, which always contain dmSeparator.
const ChannelIDPrefix = "ch"

// DMChannelID derives the DM room id shared by both participants.
func DMChannelID(a, b string) string {
	pair := []string{a, b}
	slices.Sort(pair)
	return strings.Join(pair, dmSeparator)
}

// ParseDMChannelID returns the participants encoded in a DM room id.
func ParseDMChannelID(channelID string) (string, string, bool) {
	if strings.HasPrefix(channelID, ChannelIDPrefix) {
		return "", "", false
	}
	a, b, found := strings.Cut(channelID, dmSeparator)
	if !found || a == "" || b == "" || strings.Contains(b, dmSeparator) {
		return "", "", false
	}
	return a, b, true
}

func IsDMChannelID(channelID string) bool {
	_, _, ok := ParseDMChannelID(channelID)
	return ok
}

// OtherParticipant returns the DM peer of userID, if userID takes part.
func OtherParticipant(channelID, userID string) (string, bool) {
	a, b, ok := ParseDMChannelID(channelID)
	switch {
	case !ok:
		return "", false
	case a == userID:
		return b, true
	case b == userID:
		return a, true
	}
	return "", false
}
