// Command eternitysrv is the dedicated game server: it loads a JSON
// config (internal/config), resolves and hashes its declared
// resources, brings up the WebTransport listener (internal/transport),
// and drives internal/tic's fixed 35 Hz loop until interrupted.
// Grounded on rustyguts-bken/server/main.go's flag/TLS/graceful-
// shutdown/background-goroutine structure.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/eternitynet/server/internal/auth"
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/console"
	"github.com/eternitynet/server/internal/demo"
	"github.com/eternitynet/server/internal/game"
	"github.com/eternitynet/server/internal/master"
	"github.com/eternitynet/server/internal/session"
	"github.com/eternitynet/server/internal/tic"
	"github.com/eternitynet/server/internal/transport"
	"github.com/eternitynet/server/internal/vote"
)

// Version is set at build time.
var Version = "dev"

// demoHeaderVersion tags every demo header; there is no engine build
// number anywhere outside the wire protocol yet, so both header fields
// reuse protocol.ProtocolVersion.
const demoHeaderVersion = 4

func main() {
	configPath := flag.String("config", "server.json", "server config JSON path")
	accessListPath := flag.String("access-list", "accesslist.json", "ban/whitelist JSON path")
	addr := flag.String("listen", ":10666", "WebTransport/HTTP3 listen address")
	wadDir := flag.String("wad-dir", ".", "directory searched for IWAD/PWAD/DEH resources")
	cacheDir := flag.String("wad-cache-dir", "wadcache", "directory PWADs fetched from wad_repository are cached in")
	certValidity := flag.Duration("cert-validity", 365*24*time.Hour, "self-signed TLS certificate validity")
	recordDemo := flag.Bool("record-demo", false, "record this session to -demo-dir")
	demoDir := flag.String("demo-dir", "demos", "directory recorded demos are written under")
	dashboard := flag.Bool("dashboard", false, "run an interactive tcell admin dashboard instead of a plain stdin console")
	flag.Parse()

	log.Printf("eternitysrv %s", Version)

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	if err := doc.Validate(); err != nil {
		log.Fatalf("[config] %v", err)
	}

	resolver := config.NewResolver([]string{*wadDir}, *cacheDir, doc.Server.WADRepository)
	resources, err := resolver.Resolve(doc.Resources)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	for _, r := range resources {
		log.Printf("[config] resolved %s (%s): sha1=%s", r.Name, r.Type, r.SHA1)
	}

	passwords := auth.Passwords{
		Spectator:     doc.Server.SpectatorPassword,
		Player:        doc.Server.PlayerPassword,
		Moderator:     doc.Server.ModeratorPassword,
		Administrator: doc.Server.AdminPassword,
	}

	access, err := auth.LoadAccessList(*accessListPath)
	if err != nil {
		log.Fatalf("[auth] %v", err)
	}

	hostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil && host != "" {
		hostname = host
	}
	tlsConfig, fingerprint, err := generateTLSConfig(*certValidity, hostname)
	if err != nil {
		log.Fatalf("[tls] %v", err)
	}
	log.Printf("[tls] certificate fingerprint: %s", fingerprint)

	maxPlayers := doc.Server.MaxPlayerClients + doc.Server.MaxAdminClients
	listener, err := transport.Listen(*addr, tlsConfig, maxPlayers)
	if err != nil {
		log.Fatalf("[transport] %v", err)
	}

	table := clientstate.NewTable()
	world := game.NewWorld()

	rotation := session.NewRotation(doc.Maps, doc.Server.RandomizeMaps, rand.New(rand.NewSource(time.Now().UnixNano())))
	sess := session.NewSession(rotation)
	firstMap := sess.CompleteMap(table)
	tm, sectors := game.DemoMapSized(64, 64)
	world.ResetForMap(tm, sectors)

	masterConfigs := make([]master.Config, len(doc.Masters))
	for i, m := range doc.Masters {
		masterConfigs[i] = master.Config{URL: m.URL, Group: m.Group, Name: m.Name, Username: m.Username, Password: m.Password, Index: i}
	}
	masters := master.NewManager(masterConfigs)

	recorder := openRecorder(*recordDemo, *demoDir, firstMap.Name, resources)

	opts := tic.Options{
		MaxPlayers:        maxPlayers,
		JoinTimeLimitTics: tic.TicRate * 30,
		FloodRPS:          20,
		FloodBurst:        10,
	}
	loop := tic.New(opts, listener, table, world, sess, vote.NewManager(), masters, passwords, access, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	if staticJSON, err := json.Marshal(staticAdvertisement{
		Address:          *addr,
		GameType:         doc.Server.GameType,
		MaxPlayerClients: doc.Server.MaxPlayerClients,
		MaxAdminClients:  doc.Server.MaxAdminClients,
	}); err == nil {
		if err := masters.ListAll(ctx, staticJSON); err != nil {
			log.Printf("[master] list: %v", err)
		}
	}

	run(ctx, loop, *dashboard, masters, recorder)
}

// staticAdvertisement is the one-time PUT body masters receive when
// this server first lists itself (spec.md §4.K); the periodic POST
// body is tic.Loop's own freshMasterState, which changes every update.
type staticAdvertisement struct {
	Address          string          `json:"address"`
	GameType         config.GameType `json:"game_type"`
	MaxPlayerClients int             `json:"max_player_clients"`
	MaxAdminClients  int             `json:"max_admin_clients"`
}

// openRecorder starts a demo recording rooted at demoDir, or returns
// nil if recording wasn't requested or setup failed (spec.md §8
// "Demo I/O error: recording aborts with a message to the local
// console; gameplay continues").
func openRecorder(enabled bool, demoDir, mapName string, resources []config.Resource) *demo.Recorder {
	if !enabled {
		return nil
	}
	timestamp := time.Now().UTC().Format("20060102-150405")
	rec, err := demo.NewRecorder(demoDir, timestamp, demoHeaderVersion, demoHeaderVersion, "eternitysrv")
	if err != nil {
		log.Printf("[demo] recording disabled: %v", err)
		return nil
	}
	records := make([]demo.ResourceRecord, len(resources))
	for i, r := range resources {
		records[i] = demo.ResourceRecord{Name: r.Name, Type: string(r.Type), SHA1: r.SHA1}
	}
	header := demo.Header{
		EngineVersion:      demoHeaderVersion,
		ProtocolVersion:    demoHeaderVersion,
		DemoType:           demo.TypeServer,
		Timestamp:          time.Now().Unix(),
		MapName:            mapName,
		ConsolePlayerIndex: 0,
		Resources:          records,
	}
	if err := rec.AddMap(header); err != nil {
		log.Printf("[demo] recording disabled: %v", err)
		return nil
	}
	return rec
}

// run drives the tic loop until ctx is cancelled, pumping either the
// plain stdin console or the tcell dashboard each tic.
func run(ctx context.Context, loop *tic.Loop, useDashboard bool, masters *master.Manager, recorder *demo.Recorder) {
	dispatcher := console.NewDispatcher(loop, rand.New(rand.NewSource(time.Now().UnixNano())))
	dispatcher.Install()

	var dash *console.Dashboard
	var stdinLines chan string
	if useDashboard {
		dash = console.NewDashboard(dispatcher)
		if err := dash.Init(); err != nil {
			log.Fatalf("[console] dashboard init: %v", err)
		}
		defer dash.Close()
	} else {
		stdinLines = make(chan string, 16)
		go readStdinCommands(stdinLines)
	}

	ticker := time.NewTicker(tic.TickerDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if recorder != nil {
				if path, err := recorder.Close(); err != nil {
					log.Printf("[demo] close: %v", err)
				} else {
					log.Printf("[demo] recorded to %s", path)
				}
			}
			masters.DelistAll(context.Background())
			return
		case <-ticker.C:
			if dash != nil {
				dash.PumpInput()
			} else {
				drainStdinCommands(stdinLines, dispatcher)
			}
			loop.RunTic(ctx)
			if dash != nil {
				dash.Render(loop)
			}
		}
	}
}

func readStdinCommands(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

func drainStdinCommands(in <-chan string, dispatcher *console.Dispatcher) {
	for {
		select {
		case line, ok := <-in:
			if !ok {
				return
			}
			if out := dispatcher.Run(line); out != "" {
				fmt.Println(out)
			}
		default:
			return
		}
	}
}
