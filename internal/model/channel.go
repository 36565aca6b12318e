package model

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidChannel = errors.New("invalid channel identifier")

var (
	channelNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	channelIDRe   = regexp.MustCompile(`^-100[0-9]{5,}$`)
)

var linkPrefixes = []string{"https://t.me/", "http://t.me/", "t.me/"}

// NormalizeChannel accepts "@name", "name", "t.me/name" links and numeric
// "-100..." chat ids, returning "@name" or the numeric id.
func NormalizeChannel(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, p := range linkPrefixes {
		if strings.HasPrefix(strings.ToLower(s), p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.TrimSuffix(s, "/")
	if channelIDRe.MatchString(s) {
		return s, nil
	}
	s = strings.TrimPrefix(s, "@")
	if !channelNameRe.MatchString(s) {
		return "", ErrInvalidChannel
	}
	return "@" + s, nil
}

// JoinLink returns the public link for a channel, or "" for numeric ids.
func JoinLink(channel string) string {
	if !strings.HasPrefix(channel, "@") {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}
