// Package nation implements the per-nation credential cache actor:
// static passwords parsed once at startup, and a volatile session PIN
// refreshed from the remote's X-Pin response header.
package nation

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidNation is returned whenever an operation names a nation the
// cache was never configured with.
var ErrInvalidNation = errors.New("invalid nation")

const commandChannelDepth = 16

type entry struct {
	password string
	pin      string
}

// Cache is the public handle to the actor.
type Cache struct {
	cmds chan command
}

type cmdKind int

const (
	cmdGetPassword cmdKind = iota
	cmdGetPin
	cmdSetPin
	cmdList
)

type command struct {
	kind   cmdKind
	nation string
	pin    string
	reply  chan cmdResult
}

type cmdResult struct {
	value string
	names []string
	err   error
}

// Parse turns a "name:password,name:password,..." configuration string
// into the initial nation set. Duplicate names overwrite — last wins.
// Parse failure (a segment with no ':' or with an empty name) is returned
// as an error; the caller (config loading) treats that as fatal. Only the
// first ':' splits a segment, so any later ':' stays in the password.
func Parse(raw string) (map[string]string, error) {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Errorf("invalid nation entry %q: want name:password", pair)
		}
		out[strings.ToLower(parts[0])] = parts[1]
	}
	return out, nil
}

// Start launches the actor with an initial nation->password set and
// returns a handle. The goroutine runs until ctx is canceled.
func Start(ctx context.Context, initial map[string]string) *Cache {
	c := &Cache{cmds: make(chan command, commandChannelDepth)}
	go c.run(ctx, initial)
	return c
}

func (c *Cache) send(ctx context.Context, cmd command) cmdResult {
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return cmdResult{err: ctx.Err()}
	}
	select {
	case r := <-cmd.reply:
		return r
	case <-ctx.Done():
		return cmdResult{err: ctx.Err()}
	}
}

// GetPassword returns the static password for nation, or ErrInvalidNation.
func (c *Cache) GetPassword(ctx context.Context, nationName string) (string, error) {
	r := c.send(ctx, command{kind: cmdGetPassword, nation: normalize(nationName), reply: make(chan cmdResult, 1)})
	return r.value, r.err
}

// GetPin returns the cached PIN for nation (empty string if never set), or
// ErrInvalidNation. An empty PIN is a valid value to replay on the remote
// protocol — it is not itself an error.
func (c *Cache) GetPin(ctx context.Context, nationName string) (string, error) {
	r := c.send(ctx, command{kind: cmdGetPin, nation: normalize(nationName), reply: make(chan cmdResult, 1)})
	return r.value, r.err
}

// SetPin updates the cached PIN for nation, or returns ErrInvalidNation.
func (c *Cache) SetPin(ctx context.Context, nationName, pin string) error {
	r := c.send(ctx, command{kind: cmdSetPin, nation: normalize(nationName), pin: pin, reply: make(chan cmdResult, 1)})
	return r.err
}

// ListNations returns every known nation name, for the dispatch-nations /
// rmbpost-nations response headers.
func (c *Cache) ListNations(ctx context.Context) []string {
	r := c.send(ctx, command{kind: cmdList, reply: make(chan cmdResult, 1)})
	return r.names
}

func normalize(nationName string) string {
	return strings.ToLower(strings.TrimSpace(nationName))
}

func (c *Cache) run(ctx context.Context, initial map[string]string) {
	nations := make(map[string]*entry, len(initial))
	for name, password := range initial {
		nations[name] = &entry{password: password}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdGetPassword:
				n, ok := nations[cmd.nation]
				if !ok {
					cmd.reply <- cmdResult{err: ErrInvalidNation}
					continue
				}
				cmd.reply <- cmdResult{value: n.password}
			case cmdGetPin:
				n, ok := nations[cmd.nation]
				if !ok {
					cmd.reply <- cmdResult{err: ErrInvalidNation}
					continue
				}
				cmd.reply <- cmdResult{value: n.pin}
			case cmdSetPin:
				n, ok := nations[cmd.nation]
				if !ok {
					cmd.reply <- cmdResult{err: ErrInvalidNation}
					continue
				}
				n.pin = cmd.pin
				cmd.reply <- cmdResult{}
			case cmdList:
				names := make([]string, 0, len(nations))
				for name := range nations {
					names = append(names, name)
				}
				cmd.reply <- cmdResult{names: names}
			}
		}
	}
}

// String renders an entry for debugging without leaking the password.
func (e *entry) String() string {
	return fmt.Sprintf("entry{pin_set=%t}", e.pin != "")
}
