// ABOUTME: Prints frame release decisions for scripted playback scenarios
// ABOUTME: Runs against a fake clock so traces are reproducible
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var (
	scenarioName = pflag.String("scenario", "all", "Scenario to run, or all")
	list         = pflag.Bool("list", false, "List scenarios and exit")
)

func main() {
	pflag.Parse()

	if *list {
		for _, s := range scenarios {
			fmt.Printf("%-12s %s\n", s.name, s.description)
		}
		return
	}

	if *scenarioName == "all" {
		for _, s := range scenarios {
			s.run(os.Stdout)
		}
		return
	}

	s, ok := findScenario(*scenarioName)
	if !ok {
		log.Fatalf("Unknown scenario %q (use --list)", *scenarioName)
	}
	s.run(os.Stdout)
}
