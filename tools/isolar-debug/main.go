// Command isolar-debug performs a single rendezvous and a single
// register-group read, printing the decoded values. Standalone
// diagnostic tool, not part of the running poller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/easun/isolar-poller/inverter"
)

func main() {
	inverterIP := flag.String("inverter", "", "inverter IP address")
	localIP := flag.String("local", "", "local IP address to bind the reverse listener on")
	start := flag.Uint("start", 277, "starting register address")
	count := flag.Uint("count", 5, "register count")
	unsigned := flag.Bool("unsigned", false, "decode registers as unsigned instead of signed")
	flag.Parse()

	if *inverterIP == "" || *localIP == "" {
		log.Fatal("❌ -inverter and -local are required")
	}

	rendezvous := &inverter.Rendezvous{InverterIP: *inverterIP, LocalIP: *localIP}
	conn, err := rendezvous.Dial(context.Background())
	if err != nil {
		log.Fatalf("❌ rendezvous failed: %v", err)
	}
	defer conn.Close()

	session := inverter.NewSession(conn)
	format := inverter.Int
	if *unsigned {
		format = inverter.UnsignedInt
	}
	group := inverter.RegisterGroup{Start: uint16(*start), Count: uint16(*count)}
	results := session.ReadGroups([]inverter.RegisterGroup{group}, format)

	result := results[0]
	if result.Err != nil {
		log.Fatalf("❌ read failed: %v", result.Err)
	}
	for i, v := range result.Values {
		fmt.Printf("register %d = %d\n", int(group.Start)+i, v)
	}
}
