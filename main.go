package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/putto11262002/chatsync/client"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := client.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		log.Fatalf("new client: %v", err)
	}

	go c.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.Events():
			switch e := e.(type) {
			case client.RoomListUpdated:
				logger.Info("rooms updated", slog.Int("count", len(e.Rooms)))
			case client.MessageAdded:
				logger.Info("message",
					slog.Int64("room_id", e.RoomID),
					slog.String("sender", e.Message.SenderName),
					slog.String("content", e.Message.Content))
			case client.MessageAcked:
				logger.Info("message acknowledged",
					slog.Int64("provisional_id", e.ProvisionalID),
					slog.Int64("message_id", e.MessageID))
			case client.SendFailed:
				logger.Error("send failed", slog.Int64("provisional_id", e.ProvisionalID))
			case client.UnreadChanged:
				logger.Info("unread", slog.Int64("room_id", e.RoomID), slog.Int("count", e.Unread))
			case client.ConnStateChanged:
				logger.Info("connection", slog.String("state", e.State.String()))
			}
		}
	}
}
