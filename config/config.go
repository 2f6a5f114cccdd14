// Package config parses the plain-text membership file format spec.md §6
// prescribes: one `memberId,host,port` entry per line, `#` comments, blank
// lines skipped. The core itself never imports this package — it consumes
// only the resulting NodeID set (spec.md: "The core itself consumes only
// the resulting NodeId set; host/port are transport concerns") — this lives
// here purely for cmd/paxosdemo to build an Identity from a file, the way
// NetworkManager.loadConfig does in the source this module was distilled
// from.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lmorrow/paxos-core/paxos"
)

// Member is one parsed membership entry. Host/Port are carried through for
// a real transport to use; the paxos core has no use for them.
type Member struct {
	ID   paxos.NodeID
	Host string
	Port int
}

// Load reads and parses a membership file at path.
func Load(path string) ([]Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads membership entries from r.
func Parse(r io.Reader) ([]Member, error) {
	var members []Member
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: line %d: expected memberId,host,port, got %q", lineNo, line)
		}

		id := strings.TrimSpace(parts[0])
		host := strings.TrimSpace(parts[1])
		var port int
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[2]), "%d", &port); err != nil {
			return nil, fmt.Errorf("config: line %d: bad port %q: %w", lineNo, parts[2], err)
		}

		members = append(members, Member{ID: paxos.NodeID(id), Host: host, Port: port})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// NodeIDs extracts just the NodeID set from members, in file order — the
// only thing the paxos core's Identity needs.
func NodeIDs(members []Member) []paxos.NodeID {
	ids := make([]paxos.NodeID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}
