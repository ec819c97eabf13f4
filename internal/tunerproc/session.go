// Package tunerproc implements TunerSession: the child-process lifetime,
// subscriber bookkeeping, and broadcaster ownership of one continuous tuner
// activation.
//
// Command spawning and stdout piping follow the teacher's
// internal/supervisor.runInstanceOnce (StdoutPipe + cmd.Start); Close kills
// the child with SIGKILL at once and reaps it, with no grace period. The
// always-kill-on-close invariant follows original_source/src/tuner.rs's
// `Drop for TunerSession`.
package tunerproc

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"text/template"

	"github.com/mirakctl/mirakctl/internal/broadcaster"
	"github.com/mirakctl/mirakctl/internal/mirakerr"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// Session owns one spawned tuner command, its broadcaster, and its
// subscriber map. The zero value is not usable; construct with Activate.
type Session struct {
	ID          tunertypes.TunerSessionID
	ChannelType tunertypes.ChannelType
	Channel     string
	Command     string

	cmd         *exec.Cmd
	broadcaster *broadcaster.Broadcaster

	mu                sync.Mutex
	subscribers       map[uint32]tunertypes.TunerUser
	nextSerialNumber  uint32
}

// splitShellWords splits a rendered command string into argv the way a
// POSIX shell would tokenize it (respecting single/double quotes), erroring
// on an unterminated quote instead of silently dropping it.
func splitShellWords(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	haveWord := false
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			haveWord = true
		case r == ' ' || r == '\t':
			if haveWord {
				words = append(words, cur.String())
				cur.Reset()
				haveWord = false
			}
		default:
			cur.WriteRune(r)
			haveWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %q quote in command", string(quote))
	}
	if haveWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// renderCommand interpolates the tuner's command template the way
// original_source/src/tuner.rs's make_command does with mustache, using
// text/template with {{channel_type}}/{{channel}}/{{duration}} variables
// (the {{.channel_type}} form works as well).
func renderCommand(commandTemplate string, channelType tunertypes.ChannelType, channel string) (string, error) {
	data := map[string]string{
		"channel_type": string(channelType),
		"channel":      channel,
		"duration":     "-",
	}
	funcs := template.FuncMap{}
	for name, value := range data {
		funcs[name] = func() string { return value }
	}
	tmpl, err := template.New("tuner-command").Funcs(funcs).Parse(commandTemplate)
	if err != nil {
		return "", mirakerr.NewCommandFailed(mirakerr.UnableToParse, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", mirakerr.NewCommandFailed(mirakerr.UnableToParse, err)
	}
	return sb.String(), nil
}

// Activate spawns commandTemplate rendered for (channelType, channel),
// pipes its stdout into a new broadcaster, and returns the session.
// Fail-closed: on any error the caller must not treat a tuner as activated.
func Activate(tunerIndex int, channelType tunertypes.ChannelType, channel, commandTemplate string) (*Session, error) {
	rendered, err := renderCommand(commandTemplate, channelType, channel)
	if err != nil {
		return nil, err
	}

	parts, err := splitShellWords(rendered)
	if err != nil {
		return nil, mirakerr.NewCommandFailed(mirakerr.UnableToParse, err)
	}
	if len(parts) == 0 {
		return nil, mirakerr.NewCommandFailed(mirakerr.UnableToParse, fmt.Errorf("empty command"))
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mirakerr.NewCommandFailed(mirakerr.UnableToSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, mirakerr.NewCommandFailed(mirakerr.UnableToSpawn, err)
	}

	id := tunertypes.TunerSessionID{TunerIndex: tunerIndex, PID: cmd.Process.Pid}
	log.Printf("%s: spawned pid=%d: %q", id, cmd.Process.Pid, rendered)

	bc := broadcaster.New(id, stdout)

	log.Printf("%s: activated with %s %s", id, channelType, channel)

	return &Session{
		ID:               id,
		ChannelType:      channelType,
		Channel:          channel,
		Command:          rendered,
		cmd:              cmd,
		broadcaster:      bc,
		subscribers:      make(map[uint32]tunertypes.TunerUser),
		nextSerialNumber: 1,
	}, nil
}

// IsReusable reports whether this session is already serving channelType/channel.
func (s *Session) IsReusable(channelType tunertypes.ChannelType, channel string) bool {
	return s.ChannelType == channelType && s.Channel == channel
}

// Subscribe allocates a new monotonically-increasing subscription.
func (s *Session) Subscribe(user tunertypes.TunerUser) (tunertypes.TunerSubscriptionID, <-chan []byte) {
	s.mu.Lock()
	serial := s.nextSerialNumber
	s.nextSerialNumber++
	s.subscribers[serial] = user
	s.mu.Unlock()

	id := tunertypes.TunerSubscriptionID{SessionID: s.ID, SerialNumber: serial}
	log.Printf("%s: subscribed: %s", id, user)
	ch := s.broadcaster.Subscribe(id)
	return id, ch
}

// CanGrab reports whether a new request at priority p may preempt this
// session: true iff p is the GRAB sentinel, or every current subscriber's
// priority is strictly less than p.
func (s *Session) CanGrab(p tunertypes.TunerUserPriority) bool {
	if p.IsGrab() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.subscribers {
		if !(p > u.Priority) {
			return false
		}
	}
	return true
}

// StopStreaming removes id's subscriber and returns the remaining
// subscriber count. Returns ErrSessionNotFound if id belongs to a
// different (stale/reassigned) session.
func (s *Session) StopStreaming(id tunertypes.TunerSubscriptionID) (int, error) {
	if id.SessionID != s.ID {
		log.Printf("session id unmatched for %s: session was probably reassigned", id)
		return 0, mirakerr.ErrSessionNotFound
	}
	s.mu.Lock()
	_, ok := s.subscribers[id.SerialNumber]
	delete(s.subscribers, id.SerialNumber)
	remaining := len(s.subscribers)
	s.mu.Unlock()

	if ok {
		log.Printf("%s: unsubscribed", id)
	} else {
		log.Printf("%s: not subscribed", id)
	}
	s.broadcaster.Unsubscribe(id)
	return remaining, nil
}

// SubscriberCount returns the number of active subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Subscribers returns a snapshot of current subscriber users, for model queries.
func (s *Session) Subscribers() []tunertypes.TunerUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tunertypes.TunerUser, 0, len(s.subscribers))
	for _, u := range s.subscribers {
		out = append(out, u)
	}
	return out
}

// PID returns the child process's PID.
func (s *Session) PID() int { return s.ID.PID }

// Close always kills and reaps the child process, ignoring errors (the
// process may already be dead), then closes the broadcaster. Safe to call
// exactly once per session; the tuner manager calls this on every
// deactivation path (stop of the last subscriber, grab, manager shutdown).
// Nothing calls it on a panic.
func (s *Session) Close() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	log.Printf("%s: killed pid=%d: %s", s.ID, s.PID(), s.Command)
	log.Printf("%s: deactivated", s.ID)
}
