// ABOUTME: Watches a framepace player's stats stream
// ABOUTME: Finds players over mDNS or connects directly and prints their stats
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/framepace-go/internal/client"
	"github.com/Resonate-Protocol/framepace-go/internal/discovery"
	"github.com/Resonate-Protocol/framepace-go/internal/server"
)

var (
	addr     = pflag.String("addr", "", "Player stats address host:port (skip mDNS)")
	timeout  = pflag.Duration("discovery-timeout", 10*time.Second, "How long to wait for a player over mDNS")
	logLevel = pflag.String("log-level", "info", "Log level")
)

func main() {
	pflag.Parse()

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	playerAddr := *addr
	if playerAddr == "" {
		log.Infof("Looking for players...")
		disc := discovery.NewManager(discovery.Config{})
		disc.Browse()

		select {
		case player := <-disc.Players():
			playerAddr = player.Addr()
			log.Infof("Discovered player %s at %s", player.Name, playerAddr)
		case <-time.After(*timeout):
			log.Fatalf("No player found after %v", *timeout)
		}
		disc.Stop()
	}

	c := client.NewClient(client.Config{ServerAddr: playerAddr})
	if err := c.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer c.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case msg, ok := <-c.Stats:
			if !ok {
				log.Infof("Player closed the connection")
				return
			}
			printStats(os.Stdout, msg)
		case <-sigChan:
			return
		}
	}
}

func printStats(w io.Writer, msg server.StatsMessage) {
	p := msg.Payload
	state := "paused"
	switch {
	case p.Ended:
		state = "ended"
	case p.Playing:
		state = "playing"
	}
	fmt.Fprintf(w, "%s %-8s pos=%8.3fs %.2fx %dx%d rendered=%d dropped=%d skipped=%d ignored=%d pending=%d early=%dμs\n",
		msg.Name, state, float64(p.PositionUs)/1e6, p.Speed, p.Width, p.Height,
		p.Rendered, p.Dropped, p.Skipped, p.Ignored, p.Pending, p.HeadEarlyUs)
}
