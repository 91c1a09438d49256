// Package router maps a stream's textual name to whether presence must be
// tracked for it and to the numeric id of the conversation it denotes.
package router

import (
	"fmt"
	"regexp"
	"strconv"
)

// Matcher recognizes one kind of stream name. A matcher may extract a thread
// id without tracking presence; private conversations work that way.
type Matcher interface {
	Matches(streamName string) bool
	ThreadID(streamName string) int64
	TracksPresence() bool
}

// Match is the router's answer for one stream name.
type Match struct {
	TracksPresence bool
	ThreadID       int64
}

// Router holds an ordered list of matchers; the first one whose pattern
// matches a name wins. The list is resolved once at startup and immutable
// afterwards.
type Router struct {
	matchers []Matcher
}

func New(matchers ...Matcher) *Router {
	return &Router{matchers: matchers}
}

// Route returns the first matcher's verdict for streamName. A name no
// matcher recognizes is not presence-tracked and has thread id -1.
func (r *Router) Route(streamName string) Match {
	for _, m := range r.matchers {
		if m.Matches(streamName) {
			return Match{
				TracksPresence: m.TracksPresence(),
				ThreadID:       m.ThreadID(streamName),
			}
		}
	}
	return Match{TracksPresence: false, ThreadID: -1}
}

// RegexpMatcher recognizes stream names by a pattern with a single capture
// group holding the thread id.
type RegexpMatcher struct {
	pattern        *regexp.Regexp
	tracksPresence bool
}

var _ Matcher = (*RegexpMatcher)(nil)

func NewRegexpMatcher(pattern string, tracksPresence bool) (*RegexpMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile stream matcher %q: %w", pattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("stream matcher %q must capture the thread id", pattern)
	}
	return &RegexpMatcher{pattern: re, tracksPresence: tracksPresence}, nil
}

func (m *RegexpMatcher) Matches(streamName string) bool {
	return m.pattern.MatchString(streamName)
}

func (m *RegexpMatcher) ThreadID(streamName string) int64 {
	groups := m.pattern.FindStringSubmatch(streamName)
	if len(groups) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return -1
	}
	return id
}

func (m *RegexpMatcher) TracksPresence() bool {
	return m.tracksPresence
}

// MatcherConfig is the externally configured form of one matcher.
type MatcherConfig struct {
	Pattern        string `json:"pattern"        mapstructure:"pattern"`
	TracksPresence bool   `json:"tracksPresence" mapstructure:"tracksPresence"`
}

// DefaultMatcherConfigs covers the two chat stream kinds: group chats are
// presence-tracked, private chats only resolve to a thread id. A private
// chat stream is named chat-private-<peer>-<thread>; the second number is
// the thread id.
func DefaultMatcherConfigs() []MatcherConfig {
	return []MatcherConfig{
		{Pattern: `^chat-group-(\d+)$`, TracksPresence: true},
		{Pattern: `^chat-private-\d+-(\d+)$`, TracksPresence: false},
	}
}

// FromConfigs builds a router from configured matchers, preserving order.
func FromConfigs(configs []MatcherConfig) (*Router, error) {
	matchers := make([]Matcher, 0, len(configs))
	for _, cfg := range configs {
		m, err := NewRegexpMatcher(cfg.Pattern, cfg.TracksPresence)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return New(matchers...), nil
}
