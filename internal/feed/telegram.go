package feed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"jobradar/internal/model"
)

// historyCap bounds how many messages are read per source when the scan
// depth allows more than the provider window.
const historyCap = 2000

const historyPageSize = 100

var (
	// Private t.me/c/ links are rejected before this matches.
	tgPublicMsgRe   = regexp.MustCompile(`(?i)^https?://t\.me/([^/]+)/(\d+)/?$`)
	tgPrivateLinkRe = regexp.MustCompile(`(?i)^https?://t\.me/c/`)
)

// TelegramConfig holds the credentials and prompts of the MTProto user
// client. Code and Password are invoked interactively during the first
// authorization; subsequent runs reuse the stored session.
type TelegramConfig struct {
	APIID       int
	APIHash     string
	Phone       string
	SessionPath string

	Code     func(ctx context.Context) (string, error)
	Password func(ctx context.Context) (string, error)
}

// Telegram reads chat and channel history through the Telegram user API.
// All Feed calls must happen inside the callback passed to Connect.
type Telegram struct {
	cfg    TelegramConfig
	client *telegram.Client
	api    *tg.Client
	log    *slog.Logger
}

// NewTelegram creates a Telegram feed backend.
func NewTelegram(cfg TelegramConfig, log *slog.Logger) *Telegram {
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
	})
	return &Telegram{cfg: cfg, client: client, log: log}
}

// Connect runs the client, authorizes the session and invokes run with
// the feed ready. Authorization failure means the feed as a whole is
// unreachable and is reported as ErrUnavailable.
func (t *Telegram) Connect(ctx context.Context, run func(ctx context.Context) error) error {
	return t.client.Run(ctx, func(ctx context.Context) error {
		if err := t.authorize(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		t.api = t.client.API()
		return run(ctx)
	})
}

func (t *Telegram) authorize(ctx context.Context) error {
	status, err := t.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		t.log.Info("telegram session authorized, reusing existing session")
		return nil
	}

	t.log.Info("telegram authorization required, requesting login code")
	if t.cfg.Code == nil {
		return fmt.Errorf("login code required but no code prompt configured")
	}

	codeFn := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return t.cfg.Code(ctx)
	})

	password := ""
	if t.cfg.Password != nil {
		if password, err = t.cfg.Password(ctx); err != nil {
			return fmt.Errorf("password prompt: %w", err)
		}
	}

	flow := auth.NewFlow(auth.Constant(t.cfg.Phone, password, codeFn), auth.SendCodeOptions{})
	if err := flow.Run(ctx, t.client.Auth()); err != nil {
		return fmt.Errorf("auth flow: %w", err)
	}
	t.log.Info("telegram authorization completed")
	return nil
}

// Resolve implements Feed. Supported references: @handle, bare handle,
// t.me/<handle> links and t.me/<handle>/<id> single-message links.
// Private t.me/c/ links cannot be resolved through the public API.
func (t *Telegram) Resolve(ctx context.Context, raw string) (Source, error) {
	ref := strings.TrimSpace(raw)
	if tgPrivateLinkRe.MatchString(ref) {
		return Source{}, fmt.Errorf("%w: private link %q not resolvable", ErrAccessDenied, raw)
	}

	var messageID int64
	if m := tgPublicMsgRe.FindStringSubmatch(ref); m != nil {
		ref = m[1]
		messageID, _ = strconv.ParseInt(m[2], 10, 64)
	}
	username := usernameFromRef(ref)
	if username == "" {
		return Source{}, fmt.Errorf("%w: cannot parse source %q", ErrAccessDenied, raw)
	}

	resolved, err := t.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return Source{}, t.classify(err, raw)
	}

	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			name := ch.Title
			if name == "" {
				name = raw
			}
			return Source{
				Raw:       raw,
				Name:      name,
				messageID: messageID,
				peer: peerRef{
					channelID:  ch.ID,
					accessHash: ch.AccessHash,
					username:   ch.Username,
				},
			}, nil
		}
	}
	return Source{}, fmt.Errorf("%w: %q is not a channel or chat", ErrAccessDenied, raw)
}

func usernameFromRef(ref string) string {
	lowered := strings.ToLower(ref)
	if strings.HasPrefix(lowered, "https://t.me/") || strings.HasPrefix(lowered, "http://t.me/") {
		ref = strings.Trim(ref[strings.Index(lowered, "t.me/")+len("t.me/"):], "/")
		ref = strings.SplitN(ref, "/", 2)[0]
	}
	return strings.TrimPrefix(strings.TrimSpace(ref), "@")
}

// Messages implements Feed, paging the channel history newest first
// until cutoff, the history cap, or the start of the channel.
func (t *Telegram) Messages(ctx context.Context, src Source, cutoff time.Time, fn func(model.Message) error) error {
	if src.messageID != 0 {
		return t.singleMessage(ctx, src, cutoff, fn)
	}

	peer := &tg.InputPeerChannel{ChannelID: src.peer.channelID, AccessHash: src.peer.accessHash}
	offsetID := 0
	read := 0

	for read < historyCap {
		history, err := t.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyPageSize,
		})
		if err != nil {
			return t.classify(err, src.Raw)
		}

		// Page boundaries follow the raw entries: service messages and
		// holes still advance the offset and count toward page fullness,
		// only plain messages reach the callback.
		batch := rawMessages(history)
		if len(batch) == 0 {
			return nil
		}

		for _, mc := range batch {
			read++
			offsetID = mc.GetID()
			m, ok := mc.(*tg.Message)
			if !ok {
				continue
			}
			published := time.Unix(int64(m.Date), 0)
			if !cutoff.IsZero() && published.Before(cutoff) {
				return nil
			}
			if err := fn(model.Message{
				ID:          int64(m.ID),
				Link:        t.messageLink(src, int64(m.ID)),
				Text:        m.Message,
				PublishedAt: published,
				Source:      src.Name,
			}); err != nil {
				return err
			}
		}

		if len(batch) < historyPageSize {
			return nil
		}
	}
	return nil
}

func (t *Telegram) singleMessage(ctx context.Context, src Source, cutoff time.Time, fn func(model.Message) error) error {
	res, err := t.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{ChannelID: src.peer.channelID, AccessHash: src.peer.accessHash},
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: int(src.messageID)}},
	})
	if err != nil {
		return t.classify(err, src.Raw)
	}
	for _, m := range extractMessages(res) {
		published := time.Unix(int64(m.Date), 0)
		if !cutoff.IsZero() && published.Before(cutoff) {
			continue
		}
		if err := fn(model.Message{
			ID:          int64(m.ID),
			Link:        t.messageLink(src, int64(m.ID)),
			Text:        m.Message,
			PublishedAt: published,
			Source:      src.Name,
		}); err != nil {
			return err
		}
	}
	return nil
}

// rawMessages unwraps the concrete history response variants.
func rawMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}

// extractMessages keeps only the plain messages of a history response.
func extractMessages(res tg.MessagesMessagesClass) []*tg.Message {
	raw := rawMessages(res)
	out := make([]*tg.Message, 0, len(raw))
	for _, mc := range raw {
		if m, ok := mc.(*tg.Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func (t *Telegram) messageLink(src Source, messageID int64) string {
	if src.peer.username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", src.peer.username, messageID)
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", src.peer.channelID, messageID)
}

// classify maps Telegram RPC errors onto the feed error taxonomy.
func (t *Telegram) classify(err error, source string) error {
	switch {
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "AUTH_KEY_INVALID", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_INVALID", "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID", "PEER_ID_INVALID"):
		return fmt.Errorf("%w: %s: %v", ErrAccessDenied, source, err)
	default:
		return fmt.Errorf("source %s: %w", source, err)
	}
}
