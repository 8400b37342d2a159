// Package chatapi is the REST collaborator client: the fallback send path,
// cursor-paginated history, uploads, and the fire-and-forget message
// mutation endpoints.
package chatapi

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/usecase"
	"github.com/nguyentranbao-ct/chat-client/pkg/util"
)

// Ensure the client satisfies the collaborator contract.
var _ usecase.ChatAPI = (*client)(nil)

type client struct {
	http *resty.Client
}

func NewClient(conf *config.Config) usecase.ChatAPI {
	return &client{
		http: util.NewRestyClient().SetBaseURL(conf.ChatAPI.BaseURL),
	}
}

func (c *client) SendMessage(ctx context.Context, msg models.OutgoingMessage) (models.InboundMessage, error) {
	var out models.InboundMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&out).
		Post(fmt.Sprintf("/chats/%d/messages", msg.ConversationID))
	if err := checkResp(resp, err); err != nil {
		return models.InboundMessage{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

type uploadResponse struct {
	URLs []models.Attachment `json:"urls"`
}

func (c *client) UploadFiles(ctx context.Context, files []usecase.FileUpload) ([]models.Attachment, error) {
	req := c.http.R().
		SetContext(ctx).
		SetResult(&uploadResponse{})
	for _, f := range files {
		req.SetFileReader("files", f.Name, bytes.NewReader(f.Data))
	}

	resp, err := req.Post("/uploads")
	if err := checkResp(resp, err); err != nil {
		return nil, fmt.Errorf("upload files: %w", err)
	}
	return resp.Result().(*uploadResponse).URLs, nil
}

func (c *client) FetchMessages(ctx context.Context, req models.HistoryRequest) (models.HistoryPage, error) {
	var page models.HistoryPage
	r := c.http.R().
		SetContext(ctx).
		SetQueryParam("direction", string(req.Direction)).
		SetQueryParam("limit", strconv.Itoa(req.Limit)).
		SetResult(&page)
	if req.CursorID > 0 {
		r.SetQueryParam("cursorId", strconv.FormatInt(req.CursorID, 10))
	}

	resp, err := r.Get(fmt.Sprintf("/chats/%d/messages", req.ConversationID))
	if err := checkResp(resp, err); err != nil {
		return models.HistoryPage{}, fmt.Errorf("fetch messages: %w", err)
	}
	return page, nil
}

func (c *client) React(ctx context.Context, messageID int64, emoji string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"emoji": emoji}).
		Post(fmt.Sprintf("/messages/%d/reactions", messageID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("react to message: %w", err)
	}
	return nil
}

func (c *client) RemoveReaction(ctx context.Context, messageID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/messages/%d/reactions", messageID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

func (c *client) UpdateMessage(ctx context.Context, conversationID, messageID int64, content string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Patch(fmt.Sprintf("/chats/%d/messages/%d", conversationID, messageID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (c *client) UpdateMessageByClientID(ctx context.Context, conversationID int64, clientID, content string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Patch(fmt.Sprintf("/chats/%d/messages/by-client/%s", conversationID, clientID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("update message by client id: %w", err)
	}
	return nil
}

func (c *client) DeleteMessage(ctx context.Context, conversationID, messageID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/chats/%d/messages/%d", conversationID, messageID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *client) MarkDelivered(ctx context.Context, conversationID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/chats/%d/delivered", conversationID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (c *client) MarkRead(ctx context.Context, conversationID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/chats/%d/read", conversationID))
	if err := checkResp(resp, err); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func checkResp(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("server returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
