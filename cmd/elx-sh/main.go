// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command elx-sh is an interactive console over the adapter inventory
// database.
package main // import "github.com/go-nic/elx/cmd/elx-sh"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-nic/elx/nicdb"
)

func main() {
	log.SetPrefix("elx-sh: ")
	log.SetFlags(0)

	dbname := flag.String("db", "elxdb", "name of the inventory database")
	flag.Parse()

	db, err := nicdb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open inventory db: %+v", err)
	}
	defer db.Close()

	err = repl(db)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func repl(db *nicdb.DB) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		raw, err := line.Prompt("elx> ")
		switch {
		case err == nil:
			// ok
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		cmd := strings.TrimSpace(raw)
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		switch cmd {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println("commands: nics, profiles, last-profile, quit")
		case "nics":
			err = dumpNics(db)
		case "profiles":
			err = dumpProfiles(db)
		case "last-profile":
			err = dumpLastProfile(db)
		default:
			fmt.Printf("unknown command %q (try \"help\")\n", cmd)
		}
		if err != nil {
			log.Printf("%+v", err)
		}
	}
}

func dumpNics(db *nicdb.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nics, err := db.Nics(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve nics: %w", err)
	}
	for _, n := range nics {
		fmt.Printf("nic %d: base=0x%03x variant=%s irq=%d\n",
			n.ID, n.PortBase, n.Variant, n.IRQ,
		)
	}
	return nil
}

func dumpProfiles(db *nicdb.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	profiles, err := db.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve profiles: %w", err)
	}
	for _, p := range profiles {
		fmt.Printf("profile %q: poll-bound=%d escalate=%v\n",
			p.Name, p.PollBound, p.Escalate,
		)
	}
	return nil
}

func dumpLastProfile(db *nicdb.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, err := db.LastProfile(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve last profile: %w", err)
	}
	fmt.Printf("last profile: %q\n", name)
	return nil
}
