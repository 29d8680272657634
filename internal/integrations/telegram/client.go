package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bruno-bot/internal/domain"
)

// botAPI is the subset of *tgbotapi.BotAPI used by Client.
type botAPI interface {
	GetMe() (tgbotapi.User, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client is the bot's messaging port.
type Client struct {
	api botAPI
}

type options struct {
	endpoint   string
	httpClient *http.Client
}

type Option func(*options)

// WithEndpoint overrides the Bot API endpoint format
// ("https://api.telegram.org/bot%s/%s").
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// New creates a Client for token. No request is made; call SmokeTest to
// verify the token.
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: token must not be empty")
	}
	o := options{
		endpoint: tgbotapi.APIEndpoint,
		// Must outlive the long-poll timeout.
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: o.httpClient, Buffer: 100}
	bot.SetAPIEndpoint(o.endpoint)
	return &Client{api: bot}, nil
}

// SmokeTest calls getMe and returns the bot username.
func (c *Client) SmokeTest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	me, err := c.api.GetMe()
	if err != nil {
		return "", fmt.Errorf("telegram: getMe: %w", err)
	}
	return me.UserName, nil
}

// Updates long-polls for updates starting at offset.
func (c *Client) Updates(ctx context.Context, offset int, timeout time.Duration) ([]domain.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.api.GetUpdates(tgbotapi.UpdateConfig{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	out := make([]domain.Update, 0, len(raw))
	for _, u := range raw {
		out = append(out, domain.Update{ID: u.UpdateID, Event: toEvent(u.Message)})
	}
	return out, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (c *Client) SendHTML(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, msg)
}

// SendReply quotes replyTo when it still exists and sends a plain message
// otherwise.
func (c *Client) SendReply(ctx context.Context, chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.AllowSendingWithoutReply = true
	return c.send(ctx, msg)
}

// SendAudio sends the audio at location, a URL or a local path.
func (c *Client) SendAudio(ctx context.Context, chatID int64, location string) error {
	var file tgbotapi.RequestFileData = tgbotapi.FilePath(location)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		file = tgbotapi.FileURL(location)
	}
	return c.send(ctx, tgbotapi.NewAudio(chatID, file))
}

func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram: sendChatAction: %w", err)
	}
	return nil
}

// FileURL resolves a file id to a downloadable link.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	link, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("telegram: getFile: %w", err)
	}
	if link == "" {
		return "", errors.New("telegram: getFile: empty file link")
	}
	return link, nil
}

func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func toEvent(m *tgbotapi.Message) *domain.InboundEvent {
	if m == nil || m.Chat == nil {
		return nil
	}
	ev := &domain.InboundEvent{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Sender:    senderName(m.From, m.Chat.ID),
		Date:      time.Unix(int64(m.Date), 0).UTC(),
	}
	switch {
	case m.Voice != nil:
		ev.VoiceFileID = m.Voice.FileID
	case m.Text != "":
		ev.Text = m.Text
	default:
		return nil
	}
	return ev
}

// senderName prefers the username, then the first name, then the numeric id.
func senderName(u *tgbotapi.User, chatID int64) string {
	name := ""
	switch {
	case u == nil:
		name = strconv.FormatInt(chatID, 10)
	case u.UserName != "":
		name = u.UserName
	case u.FirstName != "":
		name = u.FirstName
	default:
		name = strconv.FormatInt(u.ID, 10)
	}
	return strings.ReplaceAll(name, " ", "")
}
