// Package console implements the headless admin command set spec.md §4
// lists: kick, ban, unban, list_bans, whitelist, unwhitelist,
// list_whitelists, coinflip, random_map_number, and map <n>. Dispatcher
// is also the seam a passed vote runs through (tic.RunVotedCommand),
// so a moderator typing `kick 3` and three players voting `kick 3` end
// up running the exact same code path.
package console

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/protocol"
	"github.com/eternitynet/server/internal/tic"
)

// Dispatcher parses and runs one console command line against a
// running Loop.
type Dispatcher struct {
	loop *tic.Loop
	rng  *rand.Rand
}

// NewDispatcher builds a dispatcher bound to loop. rng backs
// `coinflip`/`random_map_number`.
func NewDispatcher(loop *tic.Loop, rng *rand.Rand) *Dispatcher {
	return &Dispatcher{loop: loop, rng: rng}
}

// Install wires this dispatcher into tic.RunVotedCommand, so a passed
// vote's command text runs the same as a typed console command.
func (d *Dispatcher) Install() {
	tic.RunVotedCommand = func(_ *tic.Loop, commandText string) {
		d.Run(commandText)
	}
}

// Run parses and executes one command line, returning a line of
// output for the caller to display (empty for a blank line).
func (d *Dispatcher) Run(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "kick":
		return d.kick(args)
	case "ban":
		return d.ban(args)
	case "unban":
		return d.unban(args)
	case "list_bans":
		return d.listBans()
	case "whitelist":
		return d.whitelist(args)
	case "unwhitelist":
		return d.unwhitelist(args)
	case "list_whitelists":
		return d.listWhitelists()
	case "coinflip":
		return d.coinflip()
	case "random_map_number":
		return d.randomMapNumber()
	case "map":
		return d.jumpMap(args)
	default:
		return fmt.Sprintf("unknown command %q", cmd)
	}
}

// findClient resolves a player argument by client index or, failing
// that, by exact (case-insensitive) name match.
func findClient(table *clientstate.Table, target string) *clientstate.Client {
	if idx, err := strconv.Atoi(target); err == nil {
		if c := table.Get(idx); c != nil && c.InUse() {
			return c
		}
		return nil
	}
	var found *clientstate.Client
	table.ForEach(func(c *clientstate.Client) {
		if found == nil && strings.EqualFold(c.Name, target) {
			found = c
		}
	})
	return found
}

func (d *Dispatcher) kick(args []string) string {
	if len(args) < 1 {
		return "usage: kick <player> [reason]"
	}
	c := findClient(d.loop.Table(), args[0])
	if c == nil {
		return fmt.Sprintf("kick: no such player %q", args[0])
	}
	name, index := c.Name, c.Index
	d.loop.Kick(index, protocol.ReasonKicked)
	d.loop.Announce(fmt.Sprintf("%s was kicked", name))
	return fmt.Sprintf("kicked %s (index %d)", name, index)
}

func (d *Dispatcher) ban(args []string) string {
	if len(args) < 2 {
		return "usage: ban <player> <reason> [minutes]"
	}
	access := d.loop.Access()
	if access == nil {
		return "ban: no access list configured"
	}
	c := findClient(d.loop.Table(), args[0])
	if c == nil {
		return fmt.Sprintf("ban: no such player %q", args[0])
	}
	reason := args[1]
	var duration *int
	if len(args) >= 3 {
		minutes, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Sprintf("ban: invalid minutes %q", args[2])
		}
		duration = &minutes
	}
	if err := access.AddBan(c.Address, c.Name, reason, duration); err != nil {
		return fmt.Sprintf("ban: %v", err)
	}
	name, address := c.Name, c.Address
	d.loop.Kick(c.Index, protocol.ReasonBanned)
	d.loop.Announce(fmt.Sprintf("%s was banned: %s", name, reason))
	return fmt.Sprintf("banned %s (%s): %s", name, address, reason)
}

func (d *Dispatcher) unban(args []string) string {
	if len(args) < 1 {
		return "usage: unban <address>"
	}
	access := d.loop.Access()
	if access == nil {
		return "unban: no access list configured"
	}
	if err := access.RemoveBan(args[0]); err != nil {
		return fmt.Sprintf("unban: %v", err)
	}
	return fmt.Sprintf("unbanned %s", args[0])
}

func (d *Dispatcher) listBans() string {
	access := d.loop.Access()
	if access == nil {
		return "no access list configured"
	}
	bans := access.Bans()
	if len(bans) == 0 {
		return "no active bans"
	}
	var b strings.Builder
	for address, entry := range bans {
		fmt.Fprintf(&b, "%s: %s (%s)\n", address, entry.Reason, entry.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) whitelist(args []string) string {
	if len(args) < 2 {
		return "usage: whitelist <address> <name>"
	}
	access := d.loop.Access()
	if access == nil {
		return "whitelist: no access list configured"
	}
	if err := access.AddWhitelist(args[0], args[1]); err != nil {
		return fmt.Sprintf("whitelist: %v", err)
	}
	return fmt.Sprintf("whitelisted %s (%s)", args[0], args[1])
}

func (d *Dispatcher) unwhitelist(args []string) string {
	if len(args) < 1 {
		return "usage: unwhitelist <address>"
	}
	access := d.loop.Access()
	if access == nil {
		return "unwhitelist: no access list configured"
	}
	if err := access.RemoveWhitelist(args[0]); err != nil {
		return fmt.Sprintf("unwhitelist: %v", err)
	}
	return fmt.Sprintf("removed whitelist entry for %s", args[0])
}

func (d *Dispatcher) listWhitelists() string {
	access := d.loop.Access()
	if access == nil {
		return "no access list configured"
	}
	entries := access.Whitelists()
	if len(entries) == 0 {
		return "no whitelist entries"
	}
	var b strings.Builder
	for address, name := range entries {
		fmt.Fprintf(&b, "%s: %s\n", address, name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) coinflip() string {
	if d.rng.Intn(2) == 0 {
		return "heads"
	}
	return "tails"
}

// randomMapNumber reports a random 1-based map number from the current
// rotation, for an operator deciding the next map by hand; it does not
// change the map itself (use `map <n>` for that).
func (d *Dispatcher) randomMapNumber() string {
	n := d.loop.MapCount()
	if n == 0 {
		return "no maps configured"
	}
	return strconv.Itoa(d.rng.Intn(n) + 1)
}

func (d *Dispatcher) jumpMap(args []string) string {
	if len(args) < 1 {
		return "usage: map <n>"
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Sprintf("map: invalid map number %q", args[0])
	}
	next, ok := d.loop.ForceMap(n)
	if !ok {
		return fmt.Sprintf("map: %d out of range (1-%d)", n, d.loop.MapCount())
	}
	return fmt.Sprintf("changing to map %d: %s", n, next.Name)
}
