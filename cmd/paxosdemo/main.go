// Command paxosdemo runs a handful of single-decree Paxos nodes in one
// process over an in-memory Transport and drives them from stdin, the way
// CouncilMember's interactive loop does in the source this module was
// distilled from. It is a demonstration harness layered on top of the core
// package, not the core itself — paxos/ has no dependency on this command,
// config, or transport.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/sirupsen/logrus"

	"github.com/lmorrow/paxos-core/config"
	"github.com/lmorrow/paxos-core/paxos"
	"github.com/lmorrow/paxos-core/transport"
)

func main() {
	configPath := flag.String("config", "", "membership file (memberId,host,port per line); if empty, a built-in 5-node demo membership is used")
	verbose := flag.Bool("v", false, "debug-level logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&prefixed.TextFormatter{})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	ids, err := loadMembership(*configPath)
	if err != nil {
		log.Fatalf("loading membership: %v", err)
	}

	hub := transport.NewMemory(ids)
	nodes := make(map[paxos.NodeID]*paxos.Node, len(ids))
	for _, id := range ids {
		nodes[id] = paxos.NewNode(paxos.Identity{Self: id, Peers: ids}, hub.Endpoint(id), log)
	}

	log.Infof("paxosdemo: %d nodes ready: %v", len(ids), ids)
	fmt.Println("commands: propose <id> <value> | crash <id> | recover <id> | status | quit")

	repl(os.Stdin, nodes, log)
}

func loadMembership(path string) ([]paxos.NodeID, error) {
	if path == "" {
		return []paxos.NodeID{"N1", "N2", "N3", "N4", "N5"}, nil
	}
	members, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.NodeIDs(members), nil
}

func repl(in *os.File, nodes map[paxos.NodeID]*paxos.Node, log *logrus.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return

		case "status":
			for id, n := range nodes {
				v, ok := n.Decided()
				fmt.Printf("%s: crashed=%v decided=%v value=%q\n", id, n.Crashed(), ok, string(v))
			}

		case "crash":
			if n, ok := lookup(nodes, fields, log); ok {
				n.SimulateCrash()
			}

		case "recover":
			if n, ok := lookup(nodes, fields, log); ok {
				n.Recover()
			}

		case "propose":
			if len(fields) < 3 {
				fmt.Println("usage: propose <id> <value>")
				continue
			}
			n, ok := lookup(nodes, fields, log)
			if !ok {
				continue
			}
			value := strings.Join(fields[2:], " ")
			outcome := n.Propose(paxos.Value(value))
			fmt.Printf("%s: propose(%q) -> %s\n", fields[1], value, outcome)

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func lookup(nodes map[paxos.NodeID]*paxos.Node, fields []string, log *logrus.Logger) (*paxos.Node, bool) {
	if len(fields) < 2 {
		fmt.Println("usage:", fields[0], "<id> ...")
		return nil, false
	}
	n, ok := nodes[paxos.NodeID(fields[1])]
	if !ok {
		fmt.Println("unknown node:", fields[1])
	}
	return n, ok
}
