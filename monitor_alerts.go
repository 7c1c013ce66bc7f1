package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	discordAlertQueueSize = 16
	discordAlertMaxChars  = 1000
)

type monitorAlert struct {
	Module string
	Status string
	Detail string
	At     time.Time
}

func (a monitorAlert) String() string {
	if a.Status == monitorStatusOK {
		return fmt.Sprintf("%s is back online", a.Module)
	}
	if a.Detail == "" {
		return fmt.Sprintf("%s health check failed", a.Module)
	}
	return fmt.Sprintf("%s health check failed: %s", a.Module, a.Detail)
}

type alertNotifier interface {
	Notify(ctx context.Context, a monitorAlert)
}

// logAlerts is used when no Discord channel is configured.
type logAlerts struct{}

func (logAlerts) Notify(_ context.Context, a monitorAlert) {
	if a.Status == monitorStatusOK {
		logger.Info("monitor recovered", "module", a.Module)
		return
	}
	logger.Warn("monitor failing", "module", a.Module, "detail", a.Detail)
}

// channelSender is the part of a discordgo session the alerter uses.
type channelSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// discordAlerts posts monitor transitions to one channel. Sends happen on a
// single goroutine with a bounded queue; when the queue is full the alert is
// only logged.
type discordAlerts struct {
	sender    channelSender
	channelID string
	prefix    string
	queue     chan string
	closeOnce sync.Once
	closeFn   func()
}

func newDiscordAlerts(cfg Config) (*discordAlerts, error) {
	token := strings.TrimSpace(cfg.DiscordBotToken)
	channel := strings.TrimSpace(cfg.DiscordChannelID)
	if token == "" || channel == "" {
		return nil, nil
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	a := newDiscordAlertsWithSender(dg, channel, cfg.Symbol)
	a.closeFn = func() { _ = dg.Close() }
	return a, nil
}

func newDiscordAlertsWithSender(sender channelSender, channelID, symbol string) *discordAlerts {
	tag := poolSoftwareName
	if symbol != "" {
		tag = symbol + "-" + poolSoftwareName
	}
	return &discordAlerts{
		sender:    sender,
		channelID: channelID,
		prefix:    "[" + tag + "] ",
		queue:     make(chan string, discordAlertQueueSize),
	}
}

func (d *discordAlerts) Notify(_ context.Context, a monitorAlert) {
	logAlerts{}.Notify(context.Background(), a)
	msg := d.prefix + a.String()
	if len(msg) > discordAlertMaxChars {
		msg = msg[:discordAlertMaxChars]
	}
	select {
	case d.queue <- msg:
	default:
		logger.Warn("discord alert dropped, queue full", "module", a.Module)
	}
}

// run drains the queue until ctx is done.
func (d *discordAlerts) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.send(msg)
		}
	}
}

func (d *discordAlerts) send(msg string) {
	_, err := d.sender.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
		Content:         msg,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err == nil {
		return
	}
	if isDiscordPermanentError(err) {
		logger.Error("discord alert rejected", "channel_id", d.channelID, "error", err)
		return
	}
	logger.Warn("discord alert send failed", "error", err)
}

func (d *discordAlerts) close() {
	d.closeOnce.Do(func() {
		if d.closeFn != nil {
			d.closeFn()
		}
	})
}

func isDiscordPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
