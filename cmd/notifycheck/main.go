package main

import (
	"context"
	"flag"
	"log"
	"time"

	appcfg "github.com/park285/skate-duel/internal/config"
	"github.com/park285/skate-duel/internal/identity"
	"github.com/park285/skate-duel/internal/msgcat"
	"github.com/park285/skate-duel/internal/notify"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
)

func main() {
	target := flag.String("target", "notifycheck", "player id to address the test notification to")
	observe := flag.Duration("observe", 5*time.Second, "how long to wait for websocket acks")
	flag.Parse()

	if err := appcfg.LoadDotEnv(); err != nil {
		log.Fatalf("env error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	headers := notify.BearerToken(cfg.NotifyToken)

	var client *notify.Client
	if cfg.NotifyBaseURL != "" {
		client = notify.NewClient(cfg.NotifyBaseURL,
			notify.WithHeaderProvider(headers),
			notify.WithTimeout(8*time.Second),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		st, err := client.Health(ctx)
		cancel()
		if err != nil {
			log.Printf("/health error: %v", err)
		} else {
			log.Printf("/health ok: status=%s version=%s", st.Status, st.Version)
		}
	} else {
		log.Println("NOTIFY_BASE_URL not set; skipping HTTP check")
	}

	var stream *notify.Stream
	if cfg.NotifyWSURL != "" && (cfg.NotifyMode == notify.ModeWS || cfg.NotifyMode == notify.ModeAuto) {
		stream = notify.NewStream(cfg.NotifyWSURL, 5)
		stream.SetHeaderProvider(headers)
		stream.OnStateChange(func(s notify.State) {
			log.Printf("WS state: %s", s)
		})
		stream.OnAck(func(a notify.Ack) {
			log.Printf("WS ack id=%s ok=%t err=%q", a.ID, a.OK, a.Error)
		})
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := stream.Connect(cctx)
		ccancel()
		if err != nil {
			log.Printf("WS connect error: %v", err)
		}
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	outbox := notify.NewOutbox(notify.NewDispatcher(cfg.NotifyMode, client, stream, obslog.L()),
		notify.WithCatalog(cat),
		notify.WithDirectory(identity.Static{"notifycheck-opponent": "Check Bot"}),
		notify.WithPlaceholderName(cfg.PlaceholderName),
		notify.WithDispatchTimeout(cfg.NotifyTimeout),
	)

	m := &skate.Match{
		ID:               "notifycheck",
		PlayerA:          skate.Participant{ID: *target},
		PlayerB:          skate.Participant{ID: "notifycheck-opponent"},
		Status:           skate.StatusActive,
		Offense:          *target,
		Defense:          "notifycheck-opponent",
		ResponseDeadline: time.Now().Add(cfg.ResponseWindow),
	}
	intent := skate.YourTurn(m, *target, "notifycheck-opponent", "set")
	msg := outbox.Build(context.Background(), intent)
	log.Printf("sending %s to %s: %q / %q", msg.Type, msg.TargetPlayerID, msg.Title, msg.Body)
	outbox.Publish(context.Background(), []skate.Intent{intent})

	dctx, dcancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout+time.Second)
	if err := outbox.Close(dctx); err != nil {
		log.Printf("dispatch did not finish: %v", err)
	}
	dcancel()

	if stream != nil {
		// Observe acks for a short window
		t := time.NewTimer(*observe)
		<-t.C
		_ = stream.Close(context.Background())
	}
}
