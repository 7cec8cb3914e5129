// Package telegram реализует transport поверх telego.
// Все вызовы Bot API, которые нужны ядру, собраны здесь, ошибки API
// классифицируются в transport.ErrBlocked / transport.ErrFatal.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"serotonyl.ru/promo-bot/internal/transport"
)

// Client — обёртка над *telego.Bot.
type Client struct {
	api *telego.Bot
}

// New создаёт клиента.
func New(api *telego.Bot) *Client {
	return &Client{api: api}
}

// SendMessage отправляет текст, опционально с кнопкой-ссылкой.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, button *transport.Button) error {
	params := tu.Message(tu.ID(chatID), text)
	params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	if kb := keyboard(button); kb != nil {
		params.ReplyMarkup = kb
	}
	_, err := c.api.SendMessage(ctx, params)
	return classify(err)
}

// CopyMessage копирует исходное сообщение (с форматированием и медиа).
func (c *Client) CopyMessage(ctx context.Context, chatID int64, src transport.SourceRef, button *transport.Button) error {
	params := &telego.CopyMessageParams{
		ChatID:     tu.ID(chatID),
		FromChatID: tu.ID(src.ChatID),
		MessageID:  src.MessageID,
	}
	if kb := keyboard(button); kb != nil {
		params.ReplyMarkup = kb
	}
	_, err := c.api.CopyMessage(ctx, params)
	return classify(err)
}

// Forward пересылает сообщение «как есть», с указанием автора.
func (c *Client) Forward(ctx context.Context, chatID int64, src transport.SourceRef) error {
	_, err := c.api.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(chatID),
		FromChatID: tu.ID(src.ChatID),
		MessageID:  src.MessageID,
	})
	return classify(err)
}

// GetMembership возвращает статус пользователя в чате.
func (c *Client) GetMembership(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := c.api.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return "", classify(err)
	}
	return member.MemberStatus(), nil
}

// MemberCount возвращает число участников чата.
func (c *Client) MemberCount(ctx context.Context, chatID int64) (int, error) {
	n, err := c.api.GetChatMemberCount(ctx, &telego.GetChatMemberCountParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return 0, classify(err)
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

// ResolveChat находит канал по числовому ID или @username.
func (c *Client) ResolveChat(ctx context.Context, ref string) (transport.ChatInfo, error) {
	ref = strings.TrimSpace(ref)
	var chatID telego.ChatID
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		chatID = tu.ID(id)
	} else {
		if !strings.HasPrefix(ref, "@") {
			ref = "@" + ref
		}
		chatID = telego.ChatID{Username: ref}
	}

	chat, err := c.api.GetChat(ctx, &telego.GetChatParams{ChatID: chatID})
	if err != nil {
		return transport.ChatInfo{}, classify(err)
	}
	return transport.ChatInfo{ID: chat.ID, Title: chat.Title}, nil
}

// InviteLink возвращает ссылку-приглашение в канал; если её нет — создаёт.
func (c *Client) InviteLink(ctx context.Context, chatID int64) (string, transport.ChatInfo, error) {
	chat, err := c.api.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return "", transport.ChatInfo{}, classify(err)
	}
	info := transport.ChatInfo{ID: chat.ID, Title: chat.Title}
	if chat.InviteLink != "" {
		return chat.InviteLink, info, nil
	}

	link, err := c.api.ExportChatInviteLink(ctx, &telego.ExportChatInviteLinkParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return "", info, classify(err)
	}
	if link == nil {
		return "", info, fmt.Errorf("пустая ссылка-приглашение для %d", chatID)
	}
	return *link, info, nil
}

// SendMenu отправляет текст с inline-клавиатурой.
func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, rows [][]transport.Button) error {
	params := tu.Message(tu.ID(chatID), text)
	params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	if kb := menu(rows); kb != nil {
		params.ReplyMarkup = kb
	}
	_, err := c.api.SendMessage(ctx, params)
	return classify(err)
}

// AnswerCallback убирает «часики» с кнопки. alert — показать окно вместо всплывашки.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	params := tu.CallbackQuery(callbackID).WithText(text)
	params.ShowAlert = alert
	return classify(c.api.AnswerCallbackQuery(ctx, params))
}

func keyboard(button *transport.Button) *telego.InlineKeyboardMarkup {
	if button == nil || (button.URL == "" && button.Data == "") {
		return nil
	}
	return menu([][]transport.Button{{*button}})
}

func menu(rows [][]transport.Button) *telego.InlineKeyboardMarkup {
	var out [][]telego.InlineKeyboardButton
	for _, row := range rows {
		var buttons []telego.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tu.InlineKeyboardButton(b.Text).WithURL(b.URL))
			case b.Data != "":
				buttons = append(buttons, tu.InlineKeyboardButton(b.Text).WithCallbackData(b.Data))
			}
		}
		if len(buttons) > 0 {
			out = append(out, tu.InlineKeyboardRow(buttons...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return tu.InlineKeyboard(out...)
}

// classify помечает ошибку Bot API классом transport.
func classify(err error) error {
	if err == nil {
		return nil
	}

	code := 0
	desc := err.Error()
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode
		desc = apiErr.Description
	}
	lower := strings.ToLower(desc)

	switch {
	case code == 401 || strings.Contains(lower, "unauthorized"):
		return fmt.Errorf("%w: %w", transport.ErrFatal, err)
	case code == 403,
		strings.Contains(lower, "blocked"),
		strings.Contains(lower, "deactivated"),
		strings.Contains(lower, "kicked"):
		return fmt.Errorf("%w: %w", transport.ErrBlocked, err)
	}
	return err
}
